package session

import (
	"sync"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/catalog"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/models"
)

// Session groups the components serving one connected device.
type Session struct {
	UserID    int64
	Platform  models.Platform
	Provider  billing.Provider
	Manager   *Manager
	Resolver  *catalog.Resolver
	Requester *reconcile.Requester
}

// Registry holds the live session of each user. A newer connection replaces
// the older one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Put stores s and returns the session it replaced, if any.
func (r *Registry) Put(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.UserID]
	r.sessions[s.UserID] = s
	return prev
}

// Get returns the live session of a user.
func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove deletes s if it is still the user's live session.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.UserID]; ok && cur == s {
		delete(r.sessions, s.UserID)
		return true
	}
	return false
}

// All returns a snapshot of the live sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
