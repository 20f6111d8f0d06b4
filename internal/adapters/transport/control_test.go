package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlFraming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteControlMsg(&buf, MsgMute, SerializeToggle(Toggle{On: true})))
	require.NoError(t, WriteControlMsg(&buf, MsgGoAway, SerializeGoAway(GoAway{Reason: "bye"})))

	typ, payload, err := ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgMute, typ)
	tg, err := ParseToggle(payload)
	require.NoError(t, err)
	assert.True(t, tg.On)

	typ, payload, err = ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgGoAway, typ)
	g, err := ParseGoAway(payload)
	require.NoError(t, err)
	assert.Equal(t, "bye", g.Reason)

	_, _, err = ReadControlMsg(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteControlMsgRejectsOversize(t *testing.T) {
	t.Parallel()

	err := WriteControlMsg(io.Discard, MsgGoAway, make([]byte, maxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestHelloRoundTrip(t *testing.T) {
	t.Parallel()

	in := Hello{Version: ProtocolVersion, Token: "tok", Room: "room-1", Capabilities: 0x5, SSRCs: SSRCs{Mic: 1, Camera: 2, ScreenAudio: 4}}
	out, err := ParseHello(SerializeHello(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWelcomeRoundTrip(t *testing.T) {
	t.Parallel()

	in := Welcome{
		Version:   ProtocolVersion,
		SessionID: "s1",
		User:      "me",
		Participants: []ParticipantInfo{
			{User: "alice", SSRCs: SSRCs{Mic: 10, Camera: 11}},
			{User: "bob", SSRCs: SSRCs{Mic: 20}},
		},
	}
	out, err := ParseWelcome(SerializeWelcome(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSmallMessagesRoundTrip(t *testing.T) {
	t.Parallel()

	sv := SubscribeVideo{User: "alice", Screen: true, Width: 1280, Height: 720}
	gotSV, err := ParseSubscribeVideo(SerializeSubscribeVideo(sv))
	require.NoError(t, err)
	assert.Equal(t, sv, gotSV)

	pj := ParticipantInfo{User: "carol", SSRCs: SSRCs{Mic: 7, Screen: 8}}
	gotPJ, err := ParseParticipantJoin(SerializeParticipantJoin(pj))
	require.NoError(t, err)
	assert.Equal(t, pj, gotPJ)

	gotPL, err := ParseParticipantLeave(SerializeParticipantLeave(ParticipantLeave{User: "carol"}))
	require.NoError(t, err)
	assert.Equal(t, "carol", gotPL.User)

	off, err := ParseToggle(SerializeToggle(Toggle{}))
	require.NoError(t, err)
	assert.False(t, off.On)
}

func TestParseErrorsNameTheField(t *testing.T) {
	t.Parallel()

	full := SerializeHello(Hello{Version: 1, Token: "tok", Room: "r"})
	_, err := ParseHello(full[:3])
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "token", pe.Field)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ParseToggle(nil)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "on", pe.Field)

	// participant count larger than the payload
	_, err = ParseWelcome([]byte{1, 0, 0, 0x3f})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "num_participants", pe.Field)
}
