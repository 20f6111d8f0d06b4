package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/adapters/transport/transporttest"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

func constFrame(v float32) []float32 {
	f := make([]float32, media.FrameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

func newTestAudioSender(t *testing.T, codecs *fakeCodecs) (*AudioSender, *transporttest.Conn, *app.Stats, *[]uint8) {
	t.Helper()
	conn, _ := transporttest.Pipe()
	stats := &app.Stats{}
	levels := &[]uint8{}
	a := NewAudioSender(AudioConfig{VoiceBitrate: 96000, StreamBitrate: 192000}, conn, codecs, stats,
		(&recordedDiag{}).diag, func(l uint8) { *levels = append(*levels, l) })
	return a, conn, stats, levels
}

func TestAudioSenderSendsMicWithLevel(t *testing.T) {
	t.Parallel()

	a, conn, stats, levels := newTestAudioSender(t, &fakeCodecs{})
	a.Process(constFrame(0.1), true)

	sent := conn.Sent()
	require.Len(t, sent, 1)
	p, err := rtpx.Parse(sent[0])
	require.NoError(t, err)
	assert.Equal(t, rtpx.PayloadTypeOpus, p.PayloadType)
	level, voice, ok := rtpx.AudioLevel(p)
	require.True(t, ok)
	assert.Equal(t, uint8(20), level)
	assert.True(t, voice)
	assert.Equal(t, []uint8{20}, *levels)
	assert.Equal(t, uint64(1), stats.For(domain.KindMic).Snapshot().Sent)
}

func TestAudioSenderMutedSendsNothingWithoutScreenAudio(t *testing.T) {
	t.Parallel()

	a, conn, _, levels := newTestAudioSender(t, &fakeCodecs{})
	a.SetMuted(true)
	a.Process(constFrame(0.5), true)
	assert.Empty(t, conn.Sent())
	assert.Equal(t, []uint8{media.Silence}, *levels)

	a.Process(nil, false)
	assert.Empty(t, conn.Sent())
}

func TestAudioSenderMixesScreenAudioWhileMuted(t *testing.T) {
	t.Parallel()

	codecs := &fakeCodecs{}
	a, conn, stats, _ := newTestAudioSender(t, codecs)
	a.SetMuted(true)
	a.SetScreenAudio(true)
	require.NoError(t, a.PushScreenAudio(constFrame(0.4)))

	a.Process(constFrame(0.9), true)
	sent := conn.Sent()
	require.Len(t, sent, 1)
	p, err := rtpx.Parse(sent[0])
	require.NoError(t, err)
	// mic muted: only the screen batch at 0.75 gain
	dec, _ := (&fakeAudioDecoder{}).Decode(p.Payload)
	assert.InDelta(t, 0.3, dec[0], 1e-6)
	assert.Equal(t, uint64(1), stats.For(domain.KindScreenAudio).Snapshot().Sent)
	assert.Equal(t, 192000, a.Bitrate())

	// the batch was consumed; nothing left to send
	a.Process(nil, false)
	assert.Len(t, conn.Sent(), 1)
}

func TestAudioSenderScreenAudioGate(t *testing.T) {
	t.Parallel()

	a, _, stats, _ := newTestAudioSender(t, &fakeCodecs{})

	require.NoError(t, a.PushScreenAudio(constFrame(0.1)))
	assert.Equal(t, uint64(1), stats.For(domain.KindScreenAudio).Dropped(app.DropDisabled))

	a.SetScreenAudio(true)
	require.NoError(t, a.PushScreenAudio(constFrame(0.1)))
	require.NoError(t, a.PushScreenAudio(constFrame(0.2)))
	assert.Equal(t, uint64(1), stats.For(domain.KindScreenAudio).Dropped(app.DropInFlight))

	assert.ErrorIs(t, a.PushScreenAudio(make([]float32, 10)), ErrFrameSize)

	a.SetScreenAudio(false)
	a.SetScreenAudio(true)
	require.NoError(t, a.PushScreenAudio(constFrame(0.3)))
	assert.Equal(t, uint64(1), stats.For(domain.KindScreenAudio).Dropped(app.DropInFlight))
}

func TestAudioSenderWithoutMicForwardsScreenAudio(t *testing.T) {
	t.Parallel()

	codecs := &fakeCodecs{}
	a, conn, _, levels := newTestAudioSender(t, codecs)
	a.SetScreenAudio(true)
	require.NoError(t, a.PushScreenAudio(constFrame(0.4)))
	a.Process(nil, false)
	assert.Len(t, conn.Sent(), 1)
	assert.Empty(t, *levels)

	a.SetScreenAudio(false)
	a.Process(constFrame(0.1), true)
	_, _, bitrates := codecs.stats()
	assert.Equal(t, []int{96000, 192000, 96000}, bitrates)
}

func TestAudioSenderUnavailableCodec(t *testing.T) {
	t.Parallel()

	a, conn, stats, _ := newTestAudioSender(t, &fakeCodecs{noAudio: true})
	a.Process(constFrame(0.1), true)
	assert.Empty(t, conn.Sent())
	assert.Equal(t, uint64(1), stats.For(domain.KindMic).Dropped(app.DropCodec))
	a.Close()
}
