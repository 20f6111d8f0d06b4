package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/core"
)

const (
	ownerNone   = ""
	ownerScreen = "screen_audio"
	ownerSystem = "system_audio"
)

// startCapture starts src. A stale "already running" capture is stopped
// and the start retried exactly once; a second failure is returned.
func startCapture(ctx context.Context, src core.AudioSource, out chan<- core.AudioChunk) error {
	err := src.Start(ctx, out)
	if !errors.Is(err, core.ErrCaptureRunning) {
		return err
	}
	log.Warn().Str("module", "orch").Msg("capture already running, restarting")
	if stopErr := src.Stop(); stopErr != nil {
		log.Debug().Str("module", "orch").Err(stopErr).Msg("stop stale capture")
	}
	return src.Start(ctx, out)
}

// loopbackController owns the single system-audio loopback device. Screen
// audio forwarding and raw system capture compete for it; starting either
// stops whatever ran before.
type loopbackController struct {
	src core.AudioSource

	mu     sync.Mutex
	owner  string
	cancel context.CancelFunc
	done   chan struct{}
}

func newLoopbackController(src core.AudioSource) *loopbackController {
	return &loopbackController{src: src}
}

func (c *loopbackController) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Start begins capture for owner and feeds every chunk to consume on a
// dedicated goroutine.
func (c *loopbackController) Start(owner string, consume func(core.AudioChunk)) error {
	if c.src == nil || !c.src.Available() {
		return core.ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan core.AudioChunk, 16)
	if err := startCapture(ctx, c.src, ch); err != nil {
		cancel()
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-ch:
				if !ok {
					return
				}
				consume(chunk)
			}
		}
	}()
	c.owner, c.cancel, c.done = owner, cancel, done
	log.Info().Str("module", "orch").Str("owner", owner).Msg("loopback capture started")
	return nil
}

// Stop ends capture if owner holds the device. An empty owner stops any.
func (c *loopbackController) Stop(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == ownerNone || (owner != ownerNone && owner != c.owner) {
		return
	}
	c.stopLocked()
}

func (c *loopbackController) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	if err := c.src.Stop(); err != nil {
		log.Debug().Str("module", "orch").Err(err).Msg("stop loopback capture")
	}
	<-c.done
	log.Info().Str("module", "orch").Str("owner", c.owner).Msg("loopback capture stopped")
	c.owner, c.cancel, c.done = ownerNone, nil, nil
}
