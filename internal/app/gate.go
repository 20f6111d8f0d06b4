package app

import "sync/atomic"

// InFlightGate allows at most one outstanding send for a stream. A frame that
// finds the gate held is dropped by the caller, never queued.
type InFlightGate struct {
	busy atomic.Bool
}

func (g *InFlightGate) TryAcquire() bool { return g.busy.CompareAndSwap(false, true) }

// Release clears the gate whatever the outcome of the send.
func (g *InFlightGate) Release() { g.busy.Store(false) }

func (g *InFlightGate) Busy() bool { return g.busy.Load() }
