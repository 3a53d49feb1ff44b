package generation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Manager hands out one Session per user. Poll loops of every session are
// bound to the manager's lifetime rather than to the request that started them.
type Manager struct {
	deps   Dependencies
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, deps Dependencies) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{deps: deps, ctx: ctx, cancel: cancel, sessions: make(map[string]*Session)}
}

// Session returns the session of userID, creating it on first use. The
// session is marked used before m.mu is released so a concurrent Prune cannot
// evict it between this call and the caller's next one.
func (m *Manager) Session(userID string) *Session {
	userID = strings.TrimSpace(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = NewSession(m.ctx, userID, m.deps)
		m.sessions[userID] = s
	}
	s.touch()
	return s
}

// Lookup returns the session of userID without creating one. Reads count as
// use for pruning.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[strings.TrimSpace(userID)]
	if ok {
		s.touch()
	}
	return s, ok
}

// Prune drops sessions with nothing in flight that were last used before
// now-idle. It returns the number of sessions removed.
func (m *Manager) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		last, quiet := s.idleSince()
		if quiet && last.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every running poll loop. A job still in flight is failed
// locally with ShutdownMessage so waiters return at once.
func (m *Manager) Shutdown() {
	m.cancel()
}
