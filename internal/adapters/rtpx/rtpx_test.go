package rtpx

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioPacketizerCarriesLevel(t *testing.T) {
	t.Parallel()

	p := NewAudioPacketizer(0xCAFE, 0)
	dgs, err := p.Packetize([]byte{1, 2, 3, 4}, 42, true)
	require.NoError(t, err)
	require.Len(t, dgs, 1)
	assert.False(t, IsRTCP(dgs[0]))

	pkt, err := Parse(dgs[0])
	require.NoError(t, err)
	assert.Equal(t, PayloadTypeOpus, pkt.PayloadType)
	assert.Equal(t, uint32(0xCAFE), pkt.SSRC)
	assert.Equal(t, []byte{1, 2, 3, 4}, pkt.Payload)

	level, voice, ok := AudioLevel(pkt)
	require.True(t, ok)
	assert.Equal(t, uint8(42), level)
	assert.True(t, voice)
}

func TestAudioLevelAbsent(t *testing.T) {
	t.Parallel()

	_, _, ok := AudioLevel(&rtp.Packet{})
	assert.False(t, ok)
}

func TestVideoPacketizeAndAssemble(t *testing.T) {
	t.Parallel()

	frame := bytes.Repeat([]byte{0xAB}, 5000)
	vp := NewVideoPacketizer(7, 1100, 30)
	asm := NewFrameAssembler()

	var got [][]byte
	for i := 0; i < 3; i++ {
		dgs, err := vp.Packetize(frame)
		require.NoError(t, err)
		require.Greater(t, len(dgs), 1)
		for _, dg := range dgs {
			require.LessOrEqual(t, len(dg), 1100+12)
			pkt, err := Parse(dg)
			require.NoError(t, err)
			assert.Equal(t, PayloadTypeVP9, pkt.PayloadType)
			frames, _ := asm.Push(pkt)
			got = append(got, frames...)
		}
	}
	// the builder may hold the newest frame until a later packet arrives
	require.GreaterOrEqual(t, len(got), 2)
	for _, f := range got {
		assert.Equal(t, frame, f)
	}
}

func TestPLIRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := MarshalPLI(1, 99)
	require.NoError(t, err)
	assert.True(t, IsRTCP(b))

	_, err = Parse(b)
	assert.ErrorIs(t, err, ErrNotRTP)

	targets, err := PLITargets(b)
	require.NoError(t, err)
	assert.Equal(t, []uint32{99}, targets)
}

func TestJitterBufferReordersAndReportsLoss(t *testing.T) {
	t.Parallel()

	j := NewJitterBuffer(3)
	assert.False(t, j.Ready())
	push := func(seq uint16) {
		j.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: []byte{byte(seq)}})
	}
	push(10)
	push(12)
	push(11)
	push(9) // late, dropped

	assert.True(t, j.Ready())
	assert.Equal(t, []byte{10}, j.Pop())
	assert.Equal(t, []byte{11}, j.Pop())
	assert.Equal(t, []byte{12}, j.Pop())
	assert.False(t, j.Ready())

	push(14)
	assert.Nil(t, j.Pop()) // 13 missing
	assert.Equal(t, []byte{14}, j.Pop())
}

func TestJitterBufferWraps(t *testing.T) {
	t.Parallel()

	j := NewJitterBuffer(3)
	j.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 65535}, Payload: []byte{1}})
	j.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 0}, Payload: []byte{2}})
	assert.Equal(t, []byte{1}, j.Pop())
	assert.Equal(t, []byte{2}, j.Pop())
}

func TestNewSSRCNonZero(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		assert.NotZero(t, NewSSRC())
	}
}
