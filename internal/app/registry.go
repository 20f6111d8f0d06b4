package app

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/domain"
)

// Source identifies the remote stream behind an SSRC.
type Source struct {
	User domain.UserID
	Kind domain.StreamKind
}

// Canvas is the size a subscriber wants inbound video rendered at.
// Zero means native size.
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type remoteEntry struct {
	ssrcs map[domain.StreamKind]uint32
}

// Registry tracks remote participants of the current session, the SSRCs
// they send on and which of them the client wants video from.
type Registry struct {
	mu     sync.RWMutex
	users  map[domain.UserID]*remoteEntry
	bySSRC map[uint32]Source
	subs   map[domain.UserID]Canvas
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[domain.UserID]*remoteEntry),
		bySSRC: make(map[uint32]Source),
		subs:   make(map[domain.UserID]Canvas),
	}
}

// AddParticipant records a remote member. Re-adding replaces its SSRCs.
// It reports whether the user is new.
func (r *Registry) AddParticipant(user domain.UserID, ssrcs map[domain.StreamKind]uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, existed := r.users[user]
	if existed {
		for _, ssrc := range old.ssrcs {
			delete(r.bySSRC, ssrc)
		}
	}
	e := &remoteEntry{ssrcs: make(map[domain.StreamKind]uint32, len(ssrcs))}
	for kind, ssrc := range ssrcs {
		if ssrc == 0 {
			continue
		}
		e.ssrcs[kind] = ssrc
		r.bySSRC[ssrc] = Source{User: user, Kind: kind}
	}
	r.users[user] = e
	log.Debug().Str("module", "app.registry").Str("user", string(user)).Int("ssrcs", len(e.ssrcs)).Msg("participant added")
	return !existed
}

// RemoveParticipant forgets a member and returns the SSRCs it used.
func (r *Registry) RemoveParticipant(user domain.UserID) ([]uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[user]
	if !ok {
		return nil, false
	}
	out := make([]uint32, 0, len(e.ssrcs))
	for _, ssrc := range e.ssrcs {
		delete(r.bySSRC, ssrc)
		out = append(out, ssrc)
	}
	delete(r.users, user)
	delete(r.subs, user)
	log.Debug().Str("module", "app.registry").Str("user", string(user)).Msg("participant removed")
	return out, true
}

func (r *Registry) Lookup(ssrc uint32) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySSRC[ssrc]
	return s, ok
}

func (r *Registry) SSRCOf(user domain.UserID, kind domain.StreamKind) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[user]
	if !ok {
		return 0, false
	}
	ssrc, ok := e.ssrcs[kind]
	return ssrc, ok
}

func (r *Registry) Participants() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Subscribe(user domain.UserID, c Canvas) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[user] = c
}

func (r *Registry) Unsubscribe(user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, user)
}

func (r *Registry) Subscription(user domain.UserID) (Canvas, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.subs[user]
	return c, ok
}

// Reset drops everything; used when a session ends.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.users)
	clear(r.bySSRC)
	clear(r.subs)
}
