package app

import (
	"maps"
	"sync"
	"time"

	"github.com/dkeye/voicemedia/internal/domain"
)

const (
	DefaultSpeakingThreshold = 0.25
	DefaultSpeakingHold      = 300 * time.Millisecond
)

type speaker struct {
	level      float64
	lastActive time.Time
}

// SpeakingTracker keeps the active-speaker map. A user stays active for the
// hold period after the last frame above threshold. Callers are told only
// when the set of active speakers changes.
type SpeakingTracker struct {
	mu        sync.Mutex
	threshold float64
	hold      time.Duration
	active    map[domain.UserID]*speaker
}

func NewSpeakingTracker(threshold float64, hold time.Duration) *SpeakingTracker {
	if threshold <= 0 {
		threshold = DefaultSpeakingThreshold
	}
	if hold <= 0 {
		hold = DefaultSpeakingHold
	}
	return &SpeakingTracker{threshold: threshold, hold: hold, active: make(map[domain.UserID]*speaker)}
}

// Observe feeds one audio frame's activity in [0, 1].
func (t *SpeakingTracker) Observe(user domain.UserID, activity float64, now time.Time) (domain.SpeakingLevels, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.expire(now)
	if activity >= t.threshold {
		s, ok := t.active[user]
		if !ok {
			s = &speaker{}
			t.active[user] = s
			changed = true
		}
		s.level = activity
		s.lastActive = now
	}
	if !changed {
		return nil, false
	}
	return t.snapshot(), true
}

// Tick expires speakers whose hold ran out.
func (t *SpeakingTracker) Tick(now time.Time) (domain.SpeakingLevels, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.expire(now) {
		return nil, false
	}
	return t.snapshot(), true
}

func (t *SpeakingTracker) Remove(user domain.UserID) (domain.SpeakingLevels, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[user]; !ok {
		return nil, false
	}
	delete(t.active, user)
	return t.snapshot(), true
}

func (t *SpeakingTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.active)
}

func (t *SpeakingTracker) expire(now time.Time) bool {
	changed := false
	maps.DeleteFunc(t.active, func(_ domain.UserID, s *speaker) bool {
		if now.Sub(s.lastActive) > t.hold {
			changed = true
			return true
		}
		return false
	})
	return changed
}

func (t *SpeakingTracker) snapshot() domain.SpeakingLevels {
	out := make(domain.SpeakingLevels, len(t.active))
	for u, s := range t.active {
		out[u] = s.level
	}
	return out
}
