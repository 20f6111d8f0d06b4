//go:build opus && cgo

package codec

/*
#cgo pkg-config: opus
#include <opus.h>

static int opus_set_bitrate(OpusEncoder* enc, int bps) {
    return opus_encoder_ctl(enc, OPUS_SET_BITRATE(bps));
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

const (
	opusAvailable = true
	maxOpusPacket = 4000
)

func opusErr(op string, code C.int) error {
	return fmt.Errorf("codec: opus %s: %s", op, C.GoString(C.opus_strerror(code)))
}

type opusEncoder struct {
	mu  sync.Mutex
	enc *C.OpusEncoder
	buf []byte
}

func newOpusEncoder(rate, bitrate int) (core.AudioEncoder, error) {
	var code C.int
	enc := C.opus_encoder_create(C.opus_int32(rate), 1, C.OPUS_APPLICATION_VOIP, &code)
	if code != C.OPUS_OK {
		return nil, opusErr("encoder_create", code)
	}
	e := &opusEncoder{enc: enc, buf: make([]byte, maxOpusPacket)}
	if err := e.SetBitrate(bitrate); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *opusEncoder) Encode(pcm []float32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return nil, core.ErrClosed
	}
	if len(pcm) != media.FrameSamples {
		return nil, fmt.Errorf("codec: opus frame has %d samples, want %d", len(pcm), media.FrameSamples)
	}
	n := C.opus_encode_float(e.enc, (*C.float)(unsafe.Pointer(&pcm[0])), C.int(len(pcm)),
		(*C.uchar)(unsafe.Pointer(&e.buf[0])), C.opus_int32(len(e.buf)))
	if n < 0 {
		return nil, opusErr("encode", n)
	}
	out := make([]byte, int(n))
	copy(out, e.buf[:n])
	return out, nil
}

func (e *opusEncoder) SetBitrate(bps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return core.ErrClosed
	}
	if code := C.opus_set_bitrate(e.enc, C.int(bps)); code != C.OPUS_OK {
		return opusErr("set_bitrate", code)
	}
	return nil
}

func (e *opusEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc != nil {
		C.opus_encoder_destroy(e.enc)
		e.enc = nil
	}
}

type opusDecoder struct {
	mu  sync.Mutex
	dec *C.OpusDecoder
	pcm []float32
}

func newOpusDecoder(rate int) (core.AudioDecoder, error) {
	var code C.int
	dec := C.opus_decoder_create(C.opus_int32(rate), 1, &code)
	if code != C.OPUS_OK {
		return nil, opusErr("decoder_create", code)
	}
	return &opusDecoder{dec: dec, pcm: make([]float32, media.FrameSamples*6)}, nil
}

func (d *opusDecoder) Decode(packet []byte) ([]float32, error) {
	if len(packet) == 0 {
		return d.Conceal()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dec == nil {
		return nil, core.ErrClosed
	}
	n := C.opus_decode_float(d.dec, (*C.uchar)(unsafe.Pointer(&packet[0])), C.opus_int32(len(packet)),
		(*C.float)(unsafe.Pointer(&d.pcm[0])), C.int(len(d.pcm)), 0)
	if n < 0 {
		return nil, opusErr("decode", n)
	}
	out := make([]float32, int(n))
	copy(out, d.pcm[:n])
	return out, nil
}

func (d *opusDecoder) Conceal() ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dec == nil {
		return nil, core.ErrClosed
	}
	n := C.opus_decode_float(d.dec, nil, 0, (*C.float)(unsafe.Pointer(&d.pcm[0])), C.int(media.FrameSamples), 0)
	if n < 0 {
		return nil, opusErr("plc", n)
	}
	out := make([]float32, int(n))
	copy(out, d.pcm[:n])
	return out, nil
}

func (d *opusDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dec != nil {
		C.opus_decoder_destroy(d.dec)
		d.dec = nil
	}
}
