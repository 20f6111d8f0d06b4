// Package codec builds the VP9 and Opus codecs used by the media pipeline.
// The native libraries are linked only with the vpx and opus build tags;
// without them every constructor reports core.ErrUnavailable.
package codec

import (
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

const (
	VoiceBitrate  = 96000
	StreamBitrate = 192000

	DefaultCameraKbps = 1500
	DefaultScreenKbps = 2500
)

type Config struct {
	VoiceBitrate  int
	StreamBitrate int
}

func DefaultConfig() Config {
	return Config{VoiceBitrate: VoiceBitrate, StreamBitrate: StreamBitrate}
}

// Factory implements core.CodecFactory over whatever codecs were compiled in.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) *Factory {
	if cfg.VoiceBitrate <= 0 {
		cfg.VoiceBitrate = VoiceBitrate
	}
	if cfg.StreamBitrate <= 0 {
		cfg.StreamBitrate = StreamBitrate
	}
	return &Factory{cfg: cfg}
}

func (f *Factory) Config() Config { return f.cfg }

func (f *Factory) VideoAvailable() bool { return vpxAvailable }
func (f *Factory) AudioAvailable() bool { return opusAvailable }

func (f *Factory) NewVideoEncoder(width, height, fps, kbps int) (core.VideoEncoder, error) {
	if !vpxAvailable {
		return nil, core.ErrUnavailable
	}
	return newVP9Encoder(width&^1, height&^1, fps, kbps)
}

func (f *Factory) NewVideoDecoder() (core.VideoDecoder, error) {
	if !vpxAvailable {
		return nil, core.ErrUnavailable
	}
	return newVP9Decoder()
}

func (f *Factory) NewAudioEncoder(bitrate int) (core.AudioEncoder, error) {
	if !opusAvailable {
		return nil, core.ErrUnavailable
	}
	if bitrate <= 0 {
		bitrate = f.cfg.VoiceBitrate
	}
	return newOpusEncoder(media.SampleRate, bitrate)
}

func (f *Factory) NewAudioDecoder() (core.AudioDecoder, error) {
	if !opusAvailable {
		return nil, core.ErrUnavailable
	}
	return newOpusDecoder(media.SampleRate)
}

var _ core.CodecFactory = (*Factory)(nil)
