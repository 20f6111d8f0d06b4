package media

import (
	"sync"
	"time"
)

// FrameRateCap enforces a maximum capture rate by rejecting ticks that
// arrive sooner than one frame interval after the last accepted tick.
// Rejected ticks are not remembered.
type FrameRateCap struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewFrameRateCap returns a cap for fps frames per second. fps <= 0 disables it.
func NewFrameRateCap(fps int) *FrameRateCap {
	c := &FrameRateCap{}
	if fps > 0 {
		c.interval = time.Second / time.Duration(fps)
	}
	return c
}

func (c *FrameRateCap) Allow() bool { return c.AllowAt(time.Now()) }

func (c *FrameRateCap) AllowAt(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interval > 0 && !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return false
	}
	c.last = now
	return true
}

func (c *FrameRateCap) Interval() time.Duration { return c.interval }
