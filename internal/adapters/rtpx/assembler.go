package rtpx

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const maxLateVideo = 256

// FrameAssembler rebuilds VP9 frames from RTP packets of one remote SSRC.
// Not safe for concurrent use; each receiver owns one.
type FrameAssembler struct {
	sb *samplebuilder.SampleBuilder
}

func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{sb: samplebuilder.New(maxLateVideo, &codecs.VP9Packet{}, VideoClockRate)}
}

// Push adds a packet and returns every frame completed so far. lost reports
// whether packets were dropped before any returned frame.
func (a *FrameAssembler) Push(p *rtp.Packet) (frames [][]byte, lost bool) {
	a.sb.Push(p)
	for {
		s := a.sb.Pop()
		if s == nil {
			return frames, lost
		}
		if s.PrevDroppedPackets > 0 {
			lost = true
		}
		frames = append(frames, s.Data)
	}
}

// JitterBuffer reorders audio packets for one remote SSRC and hands out one
// payload per playout tick. A missing packet yields nil so the caller can
// conceal it.
type JitterBuffer struct {
	depth   int
	pending map[uint16][]byte
	next    uint16
	started bool
}

func NewJitterBuffer(depth int) *JitterBuffer {
	if depth <= 0 {
		depth = 3
	}
	return &JitterBuffer{depth: depth, pending: make(map[uint16][]byte)}
}

func (j *JitterBuffer) Push(p *rtp.Packet) {
	if !j.started {
		j.next = p.SequenceNumber
		j.started = true
	}
	if seqBefore(p.SequenceNumber, j.next) {
		return
	}
	if len(j.pending) >= j.depth*8 {
		// sender restarted or we fell far behind; resync on this packet
		clear(j.pending)
		j.next = p.SequenceNumber
	}
	j.pending[p.SequenceNumber] = p.Payload
}

// Ready reports whether playout may begin or continue.
func (j *JitterBuffer) Ready() bool { return j.started && len(j.pending) > 0 }

// Pop returns the next payload in sequence order, or nil when it is missing.
func (j *JitterBuffer) Pop() []byte {
	if !j.started {
		return nil
	}
	payload, ok := j.pending[j.next]
	if ok {
		delete(j.pending, j.next)
	}
	j.next++
	return payload
}

func (j *JitterBuffer) Buffered() int { return len(j.pending) }

func seqBefore(a, b uint16) bool { return a != b && b-a < 0x8000 }
