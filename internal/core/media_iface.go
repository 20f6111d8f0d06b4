package core

import (
	"context"
	"image"

	"github.com/dkeye/voicemedia/internal/media"
)

type VideoEncoder interface {
	// Encode compresses one frame. It may return nil bytes when the encoder
	// buffered the frame without output.
	Encode(f media.VideoFrame, forceKey bool) ([]byte, error)
	Close()
}

type VideoDecoder interface {
	Decode(frame []byte) (image.Image, error)
	Close()
}

type AudioEncoder interface {
	Encode(pcm []float32) ([]byte, error)
	SetBitrate(bps int) error
	Close()
}

type AudioDecoder interface {
	Decode(packet []byte) ([]float32, error)
	// Conceal synthesizes one frame for a lost packet.
	Conceal() ([]float32, error)
	Close()
}

// CodecFactory builds codec instances. Constructors return ErrUnavailable
// when the codec is not compiled into this build.
type CodecFactory interface {
	NewVideoEncoder(width, height, fps, kbps int) (VideoEncoder, error)
	NewVideoDecoder() (VideoDecoder, error)
	NewAudioEncoder(bitrate int) (AudioEncoder, error)
	NewAudioDecoder() (AudioDecoder, error)
	VideoAvailable() bool
	AudioAvailable() bool
}

// AudioChunk is a batch of mono float samples from a capture device.
type AudioChunk struct {
	Samples    []float32
	SampleRate int
}

//go:generate mockgen -destination=mocks/mock_capture.go -package=mocks github.com/dkeye/voicemedia/internal/core AudioSource,PlaybackSink

// AudioSource is an exclusively owned capture device. Only one Start may be
// active at a time; a second returns ErrCaptureRunning.
type AudioSource interface {
	Start(ctx context.Context, out chan<- AudioChunk) error
	Stop() error
	Available() bool
}

type PlaybackSink interface {
	Open() error
	Write(pcm []float32) error
	Close() error
	Available() bool
}
