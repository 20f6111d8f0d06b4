package app

import (
	"sync/atomic"

	"github.com/dkeye/voicemedia/internal/domain"
)

// DropReason says why an outbound frame never reached the transport.
type DropReason int

const (
	DropInFlight DropReason = iota
	DropRate
	DropCodec
	DropDisabled
	DropTransport
	DropInvalid
	dropReasonCount
)

func (r DropReason) String() string {
	switch r {
	case DropInFlight:
		return "in_flight"
	case DropRate:
		return "rate"
	case DropCodec:
		return "codec"
	case DropDisabled:
		return "disabled"
	case DropTransport:
		return "transport"
	case DropInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// StreamStats counts frames per outbound stream. Drops are normal operation
// and only ever show up here.
type StreamStats struct {
	sent    atomic.Uint64
	dropped [dropReasonCount]atomic.Uint64
}

func (s *StreamStats) Sent() { s.sent.Add(1) }

func (s *StreamStats) Drop(r DropReason) {
	if r >= 0 && r < dropReasonCount {
		s.dropped[r].Add(1)
	}
}

func (s *StreamStats) Dropped(r DropReason) uint64 {
	if r < 0 || r >= dropReasonCount {
		return 0
	}
	return s.dropped[r].Load()
}

type StatsSnapshot struct {
	Sent    uint64            `json:"sent"`
	Dropped map[string]uint64 `json:"dropped"`
}

func (s *StreamStats) Snapshot() StatsSnapshot {
	out := StatsSnapshot{Sent: s.sent.Load(), Dropped: make(map[string]uint64, dropReasonCount)}
	for r := DropReason(0); r < dropReasonCount; r++ {
		out.Dropped[r.String()] = s.dropped[r].Load()
	}
	return out
}

// Stats holds the counters of every outbound stream kind.
type Stats struct {
	streams [4]StreamStats
}

func (s *Stats) For(kind domain.StreamKind) *StreamStats {
	if int(kind) >= len(s.streams) {
		return &StreamStats{}
	}
	return &s.streams[kind]
}

func (s *Stats) Snapshot() map[string]StatsSnapshot {
	out := make(map[string]StatsSnapshot, len(s.streams))
	for i := range s.streams {
		out[domain.StreamKind(i).String()] = s.streams[i].Snapshot()
	}
	return out
}
