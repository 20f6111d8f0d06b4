// Package media defines the raw frame types handed between capture, codecs
// and the transport, plus the sample-level helpers that operate on them.
package media

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SampleRate   = 48000
	FrameSamples = 960 // 20ms mono at 48kHz

	// VideoHeaderSize is the fixed prefix of a pushed video payload:
	// width and height as little-endian uint32.
	VideoHeaderSize = 8
	BytesPerPixel   = 4
	MaxDimension    = 16384
)

var (
	ErrShortPayload = errors.New("media: payload shorter than video header")
	ErrPixelLength  = errors.New("media: pixel buffer does not match dimensions")
	ErrEmptyFrame   = errors.New("media: zero frame dimension")
	ErrFrameTooBig  = errors.New("media: frame dimension too large")
)

// VideoFrame is one RGBA picture from the camera or screen capture.
type VideoFrame struct {
	Width  int
	Height int
	Pixels []byte
}

// Validate checks that Pixels holds exactly Width*Height RGBA pixels.
func (f VideoFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return ErrEmptyFrame
	}
	if f.Width > MaxDimension || f.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrFrameTooBig, f.Width, f.Height)
	}
	if want := f.Width * f.Height * BytesPerPixel; len(f.Pixels) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrPixelLength, len(f.Pixels), want)
	}
	return nil
}

// EncodeVideoPayload frames pixel (or encoded) bytes behind the 8-byte
// width/height header used on the push path.
func EncodeVideoPayload(width, height uint32, body []byte) []byte {
	out := make([]byte, VideoHeaderSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], width)
	binary.LittleEndian.PutUint32(out[4:8], height)
	copy(out[VideoHeaderSize:], body)
	return out
}

// DecodeVideoPayload splits a pushed payload into its header fields and body.
// The body aliases b.
func DecodeVideoPayload(b []byte) (width, height uint32, body []byte, err error) {
	if len(b) < VideoHeaderSize {
		return 0, 0, nil, ErrShortPayload
	}
	width = binary.LittleEndian.Uint32(b[0:4])
	height = binary.LittleEndian.Uint32(b[4:8])
	return width, height, b[VideoHeaderSize:], nil
}

// ParseRGBAFrame decodes a pushed payload and validates it as raw RGBA.
func ParseRGBAFrame(b []byte) (VideoFrame, error) {
	w, h, body, err := DecodeVideoPayload(b)
	if err != nil {
		return VideoFrame{}, err
	}
	f := VideoFrame{Width: int(w), Height: int(h), Pixels: body}
	if err := f.Validate(); err != nil {
		return VideoFrame{}, err
	}
	return f, nil
}
