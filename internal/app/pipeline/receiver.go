package pipeline

import (
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
)

const (
	jitterDepth = 3
	pliInterval = 500 * time.Millisecond
)

// videoReceiver reassembles and decodes one remote video SSRC. Owned by the
// datagram loop.
type videoReceiver struct {
	src     app.Source
	asm     *rtpx.FrameAssembler
	dec     core.VideoDecoder
	lastPLI time.Time
}

func newVideoReceiver(src app.Source) *videoReceiver {
	return &videoReceiver{src: src, asm: rtpx.NewFrameAssembler()}
}

func (r *videoReceiver) close() {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
}

// audioReceiver buffers one remote audio SSRC. The datagram loop pushes,
// the playout loop pops.
type audioReceiver struct {
	src app.Source

	mu     sync.Mutex
	jitter *rtpx.JitterBuffer
	dec    core.AudioDecoder
	closed bool
}

func newAudioReceiver(src app.Source) *audioReceiver {
	return &audioReceiver{src: src, jitter: rtpx.NewJitterBuffer(jitterDepth)}
}

func (r *audioReceiver) push(p *rtp.Packet) {
	r.mu.Lock()
	if !r.closed {
		r.jitter.Push(p)
	}
	r.mu.Unlock()
}

// next returns one playout frame, concealing a missing packet. ok is false
// when the stream has nothing buffered or was forgotten.
func (r *audioReceiver) next(codecs core.CodecFactory) (pcm []float32, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.jitter.Ready() {
		return nil, false, nil
	}
	if r.dec == nil {
		dec, err := codecs.NewAudioDecoder()
		if err != nil {
			return nil, false, err
		}
		r.dec = dec
	}
	payload := r.jitter.Pop()
	if payload == nil {
		pcm, err = r.dec.Conceal()
	} else {
		pcm, err = r.dec.Decode(payload)
	}
	if err != nil {
		return nil, false, err
	}
	return pcm, true, nil
}

// drain discards buffered packets, used while deafened.
func (r *audioReceiver) drain() {
	r.mu.Lock()
	for r.jitter.Buffered() > 0 {
		r.jitter.Pop()
	}
	r.mu.Unlock()
}

func (r *audioReceiver) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
}
