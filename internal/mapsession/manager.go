package mapsession

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-polos/internal/hover"
	"github.com/joeblew999/plat-polos/internal/overlay"
)

// Manager mounts and unmounts sessions by id.
type Manager struct {
	deps deps

	mu       sync.RWMutex
	sessions map[string]*Controller
	closed   bool
}

// NewManager creates a manager. Sessions share the catalog, router and
// renderer; each gets its own engine.
func NewManager(c *overlay.Catalog, router Router, renderer hover.Renderer, opts Options, log *zap.Logger) *Manager {
	return &Manager{
		deps: deps{
			catalog:  c,
			router:   router,
			renderer: renderer,
			opts:     opts,
			log:      log.Named("session"),
		},
		sessions: make(map[string]*Controller),
	}
}

// Options returns the options sessions are created with.
func (m *Manager) Options() Options { return m.deps.opts }

// Catalog returns the overlay catalog.
func (m *Manager) Catalog() *overlay.Catalog { return m.deps.catalog }

// Mount creates a session. The session outlives ctx's cancellation but keeps
// its values; it ends with Unmount or Close.
func (m *Manager) Mount(ctx context.Context) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	c, err := newController(context.WithoutCancel(ctx), id, m.deps)
	if err != nil {
		return nil, fmt.Errorf("mount session: %w", err)
	}
	m.sessions[id] = c
	m.deps.log.Info("session mounted", zap.String("session_id", id), zap.Int("sessions", len(m.sessions)))
	return c, nil
}

// Get returns a mounted session.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

// Unmount stops a session and releases its engine.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	c.Close()
	m.deps.log.Info("session unmounted", zap.String("session_id", id), zap.Int("sessions", n))
	return nil
}

// IDs returns the mounted session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of mounted sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close unmounts every session. Later mounts fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range sessions {
		wg.Go(c.Close)
	}
	wg.Wait()
}
