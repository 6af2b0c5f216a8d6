// Package session tracks which sandbox session the client is attached to.
// Cache entries are namespaced by session id; switching sessions invalidates
// the previous namespace so a new container never serves the old one's files.
package session

import (
	"errors"
	"sync"

	"github.com/quasarhq/quasar/internal/cache"
	"github.com/quasarhq/quasar/internal/logging"
)

// ErrNoSession is returned when an operation requires an attached session.
var ErrNoSession = errors.New("session: no active sandbox session")

// Manager holds the current session id and owns invalidation on switch.
type Manager struct {
	mu      sync.Mutex
	current string
	cache   *cache.FileCache
}

// NewManager creates a session manager bound to the given cache.
func NewManager(c *cache.FileCache) *Manager {
	return &Manager{cache: c}
}

// Set switches to a new session id. Entries cached under the previous
// session are invalidated; setting the same id again is a no-op.
func (m *Manager) Set(id string) {
	m.mu.Lock()
	prev := m.current
	m.current = id
	m.mu.Unlock()

	if prev != "" && prev != id {
		removed := m.cache.InvalidateSession(prev)
		logging.Op().Info("session switched",
			"previous", prev, "current", id, "invalidated", removed)
	}
}

// Current returns the active session id, or "" when detached.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Require returns the active session id or ErrNoSession.
func (m *Manager) Require() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", ErrNoSession
	}
	return m.current, nil
}
