package media

// Accumulator turns arbitrarily sized sample batches into fixed-size frames.
// A remainder shorter than one frame stays buffered for the next Push; it is
// never padded or discarded.
type Accumulator struct {
	size int
	buf  []float32
}

func NewAccumulator(frameSize int) *Accumulator {
	if frameSize <= 0 {
		frameSize = FrameSamples
	}
	return &Accumulator{size: frameSize, buf: make([]float32, 0, frameSize*2)}
}

// Push appends samples and returns every complete frame now available, each
// in its own slice.
func (a *Accumulator) Push(samples []float32) [][]float32 {
	a.buf = append(a.buf, samples...)
	if len(a.buf) < a.size {
		return nil
	}
	frames := make([][]float32, 0, len(a.buf)/a.size)
	off := 0
	for len(a.buf)-off >= a.size {
		f := make([]float32, a.size)
		copy(f, a.buf[off:off+a.size])
		frames = append(frames, f)
		off += a.size
	}
	n := copy(a.buf, a.buf[off:])
	a.buf = a.buf[:n]
	return frames
}

// Buffered is the number of samples waiting for a full frame.
func (a *Accumulator) Buffered() int { return len(a.buf) }

func (a *Accumulator) Reset() { a.buf = a.buf[:0] }
