package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

func TestFactoryDefaults(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{})
	assert.Equal(t, VoiceBitrate, f.Config().VoiceBitrate)
	assert.Equal(t, StreamBitrate, f.Config().StreamBitrate)
}

func TestUnavailableVideo(t *testing.T) {
	t.Parallel()

	f := NewFactory(DefaultConfig())
	if f.VideoAvailable() {
		t.Skip("built with vpx")
	}
	_, err := f.NewVideoEncoder(640, 360, 30, DefaultCameraKbps)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	_, err = f.NewVideoDecoder()
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestUnavailableAudio(t *testing.T) {
	t.Parallel()

	f := NewFactory(DefaultConfig())
	if f.AudioAvailable() {
		t.Skip("built with opus")
	}
	_, err := f.NewAudioEncoder(0)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	_, err = f.NewAudioDecoder()
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestOpusRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFactory(DefaultConfig())
	if !f.AudioAvailable() {
		t.Skip("opus not compiled in")
	}
	enc, err := f.NewAudioEncoder(0)
	require.NoError(t, err)
	defer enc.Close()
	dec, err := f.NewAudioDecoder()
	require.NoError(t, err)
	defer dec.Close()

	pkt, err := enc.Encode(make([]float32, media.FrameSamples))
	require.NoError(t, err)
	require.NoError(t, enc.SetBitrate(StreamBitrate))

	pcm, err := dec.Decode(pkt)
	require.NoError(t, err)
	assert.Len(t, pcm, media.FrameSamples)

	plc, err := dec.Conceal()
	require.NoError(t, err)
	assert.Len(t, plc, media.FrameSamples)
}

func TestVP9RoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFactory(DefaultConfig())
	if !f.VideoAvailable() {
		t.Skip("vpx not compiled in")
	}
	enc, err := f.NewVideoEncoder(64, 48, 30, 300)
	require.NoError(t, err)
	defer enc.Close()
	dec, err := f.NewVideoDecoder()
	require.NoError(t, err)
	defer dec.Close()

	frame := media.VideoFrame{Width: 64, Height: 48, Pixels: make([]byte, 64*48*4)}
	bs, err := enc.Encode(frame, true)
	require.NoError(t, err)
	require.NotEmpty(t, bs)

	img, err := dec.Decode(bs)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}
