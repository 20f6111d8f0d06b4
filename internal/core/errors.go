package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks a capability (codec, capture device, platform API)
	// that does not exist in this build or on this host. It is terminal for the
	// request that hit it and must never fail the session.
	ErrUnavailable = errors.New("capability unavailable")
	// ErrCaptureRunning is returned when a capture device is started while a
	// previous capture on it is still alive.
	ErrCaptureRunning = errors.New("audio capture already running")
	ErrBackpressure   = errors.New("backpressure: send in flight")
	ErrNoSession      = errors.New("no active session")
	ErrClosed         = errors.New("connection closed")
)

// ConnectError is the single error surfaced when a session cannot be
// established. It carries both endpoint forms so address normalization
// problems are visible.
type ConnectError struct {
	Endpoint string
	Source   string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to media transport at %s (from %s): %v", e.Endpoint, e.Source, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
