package session

import (
	"sync"
	"time"
)

// Registry tracks the active sessions in memory. Sessions are independent;
// the registry lock only guards the map, never a session's own state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session under its ID, replacing any previous entry.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops a session from the registry. The session itself is untouched;
// terminal sessions live on in the database.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the registered sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SweepExpired ticks every registered session and returns the IDs of those
// whose clock expired on this sweep. Each session fires its expiry transition
// at most once regardless of how often the sweeper runs.
func (r *Registry) SweepExpired(now time.Time) []string {
	var expired []string
	for _, s := range r.Sessions() {
		if s.Tick(now) {
			expired = append(expired, s.ID())
		}
	}
	return expired
}
