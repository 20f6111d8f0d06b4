package pipeline

import (
	"encoding/binary"
	"image"
	"math"
	"sync"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

// fakeCodecs encodes video as "width,height,keyframe" and audio as the
// first sample, so tests can check what went over the wire.
type fakeCodecs struct {
	mu         sync.Mutex
	noVideo    bool
	noAudio    bool
	encoders   int
	keyframes  int
	bitrates   []int
	lastAudioN int
	decoders   int
}

func (f *fakeCodecs) VideoAvailable() bool { return !f.noVideo }
func (f *fakeCodecs) AudioAvailable() bool { return !f.noAudio }

func (f *fakeCodecs) NewVideoEncoder(_, _, _, _ int) (core.VideoEncoder, error) {
	if f.noVideo {
		return nil, core.ErrUnavailable
	}
	f.mu.Lock()
	f.encoders++
	f.mu.Unlock()
	return &fakeVideoEncoder{f: f}, nil
}

func (f *fakeCodecs) NewVideoDecoder() (core.VideoDecoder, error) {
	if f.noVideo {
		return nil, core.ErrUnavailable
	}
	return fakeVideoDecoder{}, nil
}

func (f *fakeCodecs) NewAudioEncoder(bitrate int) (core.AudioEncoder, error) {
	if f.noAudio {
		return nil, core.ErrUnavailable
	}
	f.mu.Lock()
	f.bitrates = append(f.bitrates, bitrate)
	f.mu.Unlock()
	return &fakeAudioEncoder{f: f}, nil
}

func (f *fakeCodecs) NewAudioDecoder() (core.AudioDecoder, error) {
	if f.noAudio {
		return nil, core.ErrUnavailable
	}
	f.mu.Lock()
	f.decoders++
	f.mu.Unlock()
	return &fakeAudioDecoder{}, nil
}

func (f *fakeCodecs) stats() (encoders, keyframes int, bitrates []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encoders, f.keyframes, append([]int(nil), f.bitrates...)
}

type fakeVideoEncoder struct{ f *fakeCodecs }

func (e *fakeVideoEncoder) Encode(fr media.VideoFrame, forceKey bool) ([]byte, error) {
	if forceKey {
		e.f.mu.Lock()
		e.f.keyframes++
		e.f.mu.Unlock()
	}
	out := make([]byte, 9)
	binary.LittleEndian.PutUint32(out[0:], uint32(fr.Width))
	binary.LittleEndian.PutUint32(out[4:], uint32(fr.Height))
	if forceKey {
		out[8] = 1
	}
	return out, nil
}

func (e *fakeVideoEncoder) Close() {}

type fakeVideoDecoder struct{}

func (fakeVideoDecoder) Decode(b []byte) (image.Image, error) {
	w := int(binary.LittleEndian.Uint32(b[0:]))
	h := int(binary.LittleEndian.Uint32(b[4:]))
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (fakeVideoDecoder) Close() {}

type fakeAudioEncoder struct{ f *fakeCodecs }

func (e *fakeAudioEncoder) Encode(pcm []float32) ([]byte, error) {
	e.f.mu.Lock()
	e.f.lastAudioN = len(pcm)
	e.f.mu.Unlock()
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(pcm[0]))
	return out, nil
}

func (e *fakeAudioEncoder) SetBitrate(bps int) error {
	e.f.mu.Lock()
	e.f.bitrates = append(e.f.bitrates, bps)
	e.f.mu.Unlock()
	return nil
}

func (e *fakeAudioEncoder) Close() {}

type fakeAudioDecoder struct {
	concealed int
}

func (d *fakeAudioDecoder) Decode(b []byte) ([]float32, error) {
	v := math.Float32frombits(binary.LittleEndian.Uint32(b))
	out := make([]float32, media.FrameSamples)
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func (d *fakeAudioDecoder) Conceal() ([]float32, error) {
	d.concealed++
	return make([]float32, media.FrameSamples), nil
}

func (d *fakeAudioDecoder) Close() {}

// heldSpawn collects dispatched sends without running them so tests control
// when a send settles.
type heldSpawn struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
}

func (h *heldSpawn) spawn(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.pending = append(h.pending, fn)
	return true
}

func (h *heldSpawn) runAll() int {
	h.mu.Lock()
	fns := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

type recordedDiag struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordedDiag) diag(source, op string, _ error) {
	r.mu.Lock()
	r.ops = append(r.ops, source+":"+op)
	r.mu.Unlock()
}

func (r *recordedDiag) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type eventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *eventLog) Publish(e core.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) named(name string) []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.Event
	for _, e := range l.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
