// Package session tracks opened snapshots across API requests.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahstewart/signal-snapshot/internal/snapshot"
)

// Session is one opened snapshot. The snapshot is exclusively owned by the
// session and released when the session is removed from the registry.
type Session struct {
	ID        string
	Snapshot  *snapshot.Snapshot
	Encrypted bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session has passed its TTL.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Stats holds registry statistics.
type Stats struct {
	Active    int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Registry is an in-memory session store with TTL eviction.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	ttl         time.Duration
	stats       Stats
}

// NewRegistry creates a registry that holds at most maxSessions concurrently
// opened snapshots, each alive for ttl after creation.
func NewRegistry(maxSessions int, ttl time.Duration) *Registry {
	if maxSessions <= 0 {
		maxSessions = 16
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// Put registers an opened snapshot and returns its session. When the
// registry is full the oldest session is evicted to make room.
func (r *Registry) Put(snap *snapshot.Snapshot, encrypted bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()
	if len(r.sessions) >= r.maxSessions {
		if !r.evictOldestLocked() {
			return nil, fmt.Errorf("session registry is full")
		}
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Snapshot:  snap,
		Encrypted: encrypted,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.sessions[s.ID] = s
	return s, nil
}

// Get returns the session for id, if it exists and has not expired.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.IsExpired() {
		r.stats.Misses++
		return nil, false
	}
	r.stats.Hits++
	return s, true
}

// Delete removes a session and closes its snapshot.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return s.Snapshot.Close()
}

// Close releases every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, s := range r.sessions {
		if err := s.Snapshot.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.sessions, id)
	}
	return firstErr
}

// Stats returns a snapshot of the registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.stats
	stats.Active = len(r.sessions)
	return stats
}

// evictExpiredLocked removes expired sessions (must be called with lock held).
func (r *Registry) evictExpiredLocked() {
	for id, s := range r.sessions {
		if s.IsExpired() {
			s.Snapshot.Close()
			delete(r.sessions, id)
			r.stats.Evictions++
		}
	}
}

// evictOldestLocked removes the oldest live session (must be called with lock
// held).
func (r *Registry) evictOldestLocked() bool {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return false
	}
	oldest.Snapshot.Close()
	delete(r.sessions, oldest.ID)
	r.stats.Evictions++
	return true
}
