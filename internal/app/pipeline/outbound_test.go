package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/adapters/transport/transporttest"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

func framePayload(w, h int) []byte {
	return media.EncodeVideoPayload(uint32(w), uint32(h), make([]byte, w*h*4))
}

func newTestVideoSender(t *testing.T, codecs *fakeCodecs) (*VideoSender, *heldSpawn, *transporttest.Conn, *app.StreamStats, *recordedDiag) {
	t.Helper()
	conn, _ := transporttest.Pipe()
	spawn := &heldSpawn{}
	stats := &app.StreamStats{}
	diag := &recordedDiag{}
	v := NewVideoSender(VideoConfig{Kind: domain.KindCamera}, conn, codecs, stats, spawn.spawn, diag.diag)
	v.rate = media.NewFrameRateCap(0)
	v.SetEnabled(true)
	return v, spawn, conn, stats, diag
}

func TestVideoSenderDropsWhileInFlight(t *testing.T) {
	t.Parallel()

	v, spawn, conn, stats, _ := newTestVideoSender(t, &fakeCodecs{})

	require.True(t, v.Push(framePayload(4, 4)))
	for i := 0; i < 10; i++ {
		assert.False(t, v.Push(framePayload(4, 4)))
	}
	assert.True(t, v.InFlight())
	assert.Equal(t, uint64(10), stats.Dropped(app.DropInFlight))
	assert.Equal(t, 1, spawn.runAll())
	assert.False(t, v.InFlight())
	assert.NotEmpty(t, conn.Sent())

	require.True(t, v.Push(framePayload(4, 4)))
	assert.Equal(t, 1, spawn.runAll())
	assert.Equal(t, uint64(2), stats.Snapshot().Sent)
}

func TestVideoSenderInFlightDropKeepsRateSlot(t *testing.T) {
	t.Parallel()

	v, spawn, _, stats, _ := newTestVideoSender(t, &fakeCodecs{})
	v.rate = media.NewFrameRateCap(1)

	require.True(t, v.gate.TryAcquire())
	assert.False(t, v.Push(framePayload(4, 4)))
	assert.Equal(t, uint64(1), stats.Dropped(app.DropInFlight))
	v.gate.Release()

	require.True(t, v.Push(framePayload(4, 4)))
	assert.Zero(t, stats.Dropped(app.DropRate))
	assert.Equal(t, 1, spawn.runAll())

	assert.False(t, v.Push(framePayload(4, 4)))
	assert.Equal(t, uint64(1), stats.Dropped(app.DropRate))
	assert.False(t, v.InFlight())
}

func TestVideoSenderGateReleasedOnFailure(t *testing.T) {
	t.Parallel()

	v, spawn, conn, stats, _ := newTestVideoSender(t, &fakeCodecs{})
	conn.FailSends(core.ErrClosed)

	require.True(t, v.Push(framePayload(4, 4)))
	spawn.runAll()
	assert.False(t, v.InFlight())
	assert.Equal(t, uint64(1), stats.Dropped(app.DropTransport))
	assert.True(t, v.Push(framePayload(4, 4)))
}

func TestVideoSenderDisabledAndInvalid(t *testing.T) {
	t.Parallel()

	v, spawn, _, stats, _ := newTestVideoSender(t, &fakeCodecs{})
	v.SetEnabled(false)
	assert.False(t, v.Push(framePayload(4, 4)))
	assert.Equal(t, uint64(1), stats.Dropped(app.DropDisabled))

	v.SetEnabled(true)
	assert.False(t, v.Push([]byte{1, 2, 3}))
	assert.Equal(t, uint64(1), stats.Dropped(app.DropInvalid))
	assert.Zero(t, spawn.runAll())
}

func TestVideoSenderClosingSpawnReleasesGate(t *testing.T) {
	t.Parallel()

	v, spawn, _, _, _ := newTestVideoSender(t, &fakeCodecs{})
	spawn.closed = true
	assert.False(t, v.Push(framePayload(4, 4)))
	assert.False(t, v.InFlight())
}

func TestVideoSenderUnavailableCodecIsSilent(t *testing.T) {
	t.Parallel()

	v, spawn, conn, stats, diag := newTestVideoSender(t, &fakeCodecs{noVideo: true})
	for i := 0; i < 3; i++ {
		require.True(t, v.Push(framePayload(4, 4)))
		spawn.runAll()
	}
	assert.Equal(t, uint64(3), stats.Dropped(app.DropCodec))
	assert.Empty(t, conn.Sent())
	assert.Equal(t, []string{"video.camera:encode"}, diag.list())
}

func TestVideoSenderKeyframes(t *testing.T) {
	t.Parallel()

	codecs := &fakeCodecs{}
	v, spawn, _, _, _ := newTestVideoSender(t, codecs)

	push := func(w, h int) {
		require.True(t, v.Push(framePayload(w, h)))
		spawn.runAll()
	}
	push(4, 4)
	push(4, 4)
	enc, kf, _ := codecs.stats()
	assert.Equal(t, 1, enc)
	assert.Equal(t, 1, kf)

	v.RequestKeyframe()
	push(4, 4)
	_, kf, _ = codecs.stats()
	assert.Equal(t, 2, kf)

	push(8, 6)
	enc, kf, _ = codecs.stats()
	assert.Equal(t, 2, enc)
	assert.Equal(t, 3, kf)
	v.Close()
}

func TestVideoSenderPacketsCarrySSRC(t *testing.T) {
	t.Parallel()

	v, spawn, conn, _, _ := newTestVideoSender(t, &fakeCodecs{})
	require.True(t, v.Push(framePayload(4, 4)))
	spawn.runAll()

	sent := conn.Sent()
	require.NotEmpty(t, sent)
	p, err := rtpx.Parse(sent[0])
	require.NoError(t, err)
	assert.Equal(t, v.SSRC(), p.SSRC)
	assert.Equal(t, rtpx.PayloadTypeVP9, p.PayloadType)
}
