package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/simdash/internal/logging"
	"github.com/nvandessel/simdash/internal/simcache"
)

// Manager owns the sessions of one server. Sessions share the cache.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cache  *simcache.Cache
	cfg    Config
	logger *slog.Logger
	events *logging.EventLogger
	newID  func() string
}

// NewManager creates a session manager. logger and events may be nil.
func NewManager(cache *simcache.Cache, cfg Config, logger *slog.Logger, events *logging.EventLogger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		events:   events,
		newID:    uuid.NewString,
	}
}

// Create starts a new session with a fresh UUID.
func (m *Manager) Create() *Session {
	s := New(m.newID(), m.cache, m.cfg, m.logger, m.events)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Debug("session created", "session", s.ID())
	return s
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.logger.Debug("session removed", "session", id)
	return true
}

// RemoveIdle drops sessions not updated within maxIdle and returns how many
// were removed.
func (m *Manager) RemoveIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns summaries of all sessions, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.State()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cache returns the shared result cache.
func (m *Manager) Cache() *simcache.Cache {
	return m.cache
}
