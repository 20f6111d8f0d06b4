package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/domain"
)

func TestInFlightGate(t *testing.T) {
	t.Parallel()

	var g InFlightGate
	require.True(t, g.TryAcquire())
	assert.True(t, g.Busy())
	assert.False(t, g.TryAcquire())
	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestInFlightGateSingleWinner(t *testing.T) {
	t.Parallel()

	var g InFlightGate
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestStats(t *testing.T) {
	t.Parallel()

	var s Stats
	cam := s.For(domain.KindCamera)
	cam.Sent()
	cam.Drop(DropInFlight)
	cam.Drop(DropInFlight)
	cam.Drop(DropCodec)

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap["camera"].Sent)
	assert.Equal(t, uint64(2), snap["camera"].Dropped["in_flight"])
	assert.Equal(t, uint64(1), snap["camera"].Dropped["codec"])
	assert.Zero(t, snap["screen"].Sent)
	assert.Equal(t, uint64(2), cam.Dropped(DropInFlight))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.True(t, r.AddParticipant("alice", map[domain.StreamKind]uint32{domain.KindMic: 10, domain.KindCamera: 11, domain.KindScreen: 0}))

	src, ok := r.Lookup(11)
	require.True(t, ok)
	assert.Equal(t, Source{User: "alice", Kind: domain.KindCamera}, src)
	_, ok = r.SSRCOf("alice", domain.KindScreen)
	assert.False(t, ok)

	assert.False(t, r.AddParticipant("alice", map[domain.StreamKind]uint32{domain.KindMic: 20}))
	_, ok = r.Lookup(10)
	assert.False(t, ok)

	r.Subscribe("alice", Canvas{Width: 320, Height: 180})
	c, ok := r.Subscription("alice")
	require.True(t, ok)
	assert.Equal(t, 320, c.Width)

	ssrcs, ok := r.RemoveParticipant("alice")
	require.True(t, ok)
	assert.Equal(t, []uint32{20}, ssrcs)
	_, ok = r.Subscription("alice")
	assert.False(t, ok)
	assert.Empty(t, r.Participants())
}

func TestSpeakingTrackerEmitsOnlyOnChange(t *testing.T) {
	t.Parallel()

	tr := NewSpeakingTracker(0.3, 300*time.Millisecond)
	now := time.Unix(0, 0)

	_, changed := tr.Observe("alice", 0.1, now)
	assert.False(t, changed)

	levels, changed := tr.Observe("alice", 0.8, now)
	require.True(t, changed)
	assert.Equal(t, domain.SpeakingLevels{"alice": 0.8}, levels)

	_, changed = tr.Observe("alice", 0.9, now.Add(20*time.Millisecond))
	assert.False(t, changed)

	_, changed = tr.Tick(now.Add(200 * time.Millisecond))
	assert.False(t, changed)

	levels, changed = tr.Tick(now.Add(400 * time.Millisecond))
	require.True(t, changed)
	assert.Empty(t, levels)

	tr.Observe("bob", 1, now.Add(500*time.Millisecond))
	levels, changed = tr.Remove("bob")
	require.True(t, changed)
	assert.Empty(t, levels)
	_, changed = tr.Remove("bob")
	assert.False(t, changed)
}
