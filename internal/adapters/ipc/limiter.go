package ipc

import (
	"sync"
	"time"
)

// CommandLimiter bounds JSON commands per client over a sliding window.
// Frame pushes are not counted.
type CommandLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewCommandLimiter(limit int, interval time.Duration) *CommandLimiter {
	return &CommandLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *CommandLimiter) Allow(client string) bool {
	return rl.AllowAt(client, time.Now())
}

func (rl *CommandLimiter) AllowAt(client string, now time.Time) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := now.Add(-rl.interval)
	attempts := rl.history[client]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[client] = fresh
		return false
	}
	rl.history[client] = append(fresh, now)
	return true
}

// Forget drops the history of a disconnected client.
func (rl *CommandLimiter) Forget(client string) {
	rl.mu.Lock()
	delete(rl.history, client)
	rl.mu.Unlock()
}
