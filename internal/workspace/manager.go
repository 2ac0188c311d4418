package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// expiringKeyring is a keyring that must be told to drop expired tokens.
// Redis expires keys on its own and does not implement it.
type expiringKeyring interface {
	DropExpired() int
}

// Manager owns the live workspaces of this process.
type Manager struct {
	keyring  domain.CredentialKeyring
	registry domain.ModuleRegistry
	issuer   domain.TokenIssuer
	clock    clockwork.Clock
	idleTTL  time.Duration
	metrics  *metrics.WorkspaceMetrics

	mu          sync.RWMutex
	workspaces  map[string]*Workspace
	createGroup singleflight.Group
}

// NewManager creates a workspace manager. m may be nil.
func NewManager(keyring domain.CredentialKeyring, registry domain.ModuleRegistry, issuer domain.TokenIssuer, clock clockwork.Clock, idleTTL time.Duration, m *metrics.WorkspaceMetrics) *Manager {
	return &Manager{
		keyring:    keyring,
		registry:   registry,
		issuer:     issuer,
		clock:      clock,
		idleTTL:    idleTTL,
		metrics:    m,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the workspace for id, restoring it from the Credential Store on
// first use. Concurrent first requests for the same id share one restore.
func (m *Manager) Get(ctx context.Context, id string) (*Workspace, error) {
	if ws, ok := m.lookup(id); ok {
		ws.Touch()
		return ws, nil
	}

	v, err, _ := m.createGroup.Do(id, func() (any, error) {
		if ws, ok := m.lookup(id); ok {
			return ws, nil
		}

		ws := New(id, m.keyring.Store(id), m.registry, m.issuer, m.clock, m.metrics)
		if err := ws.Restore(ctx); err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.workspaces[id] = ws
		size := len(m.workspaces)
		m.mu.Unlock()

		m.setActive(size)
		return ws, nil
	})
	if err != nil {
		return nil, err
	}

	ws := v.(*Workspace)
	ws.Touch()
	return ws, nil
}

// Remove logs the workspace out and forgets it, including its credential.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	delete(m.workspaces, id)
	size := len(m.workspaces)
	m.mu.Unlock()
	m.setActive(size)

	var err error
	if ok {
		err = ws.Logout(ctx)
	} else {
		err = m.keyring.Store(id).Clear(ctx)
	}
	m.keyring.Forget(id)
	return err
}

// EvictIdle drops workspaces unused for longer than the idle TTL.
// Stored credentials are kept so the next request restores the session;
// only tokens past their own expiry are dropped from the keyring.
func (m *Manager) EvictIdle() int {
	if k, ok := m.keyring.(expiringKeyring); ok {
		if n := k.DropExpired(); n > 0 {
			slog.Info("Dropped expired credentials", "count", n)
		}
	}

	now := m.clock.Now()

	m.mu.Lock()
	evicted := 0
	for id, ws := range m.workspaces {
		if now.Sub(ws.LastSeen()) > m.idleTTL {
			delete(m.workspaces, id)
			evicted++
		}
	}
	size := len(m.workspaces)
	m.mu.Unlock()

	m.setActive(size)
	if evicted > 0 {
		if m.metrics != nil {
			m.metrics.EvictedWorkspaces.Add(float64(evicted))
		}
		slog.Info("Evicted idle workspaces", "count", evicted, "remaining", size)
	}
	return evicted
}

// StartEvictionTimer runs EvictIdle every interval until the returned stop
// function is called.
func (m *Manager) StartEvictionTimer(interval time.Duration) func() {
	ticker := m.clock.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.Chan():
				m.EvictIdle()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

func (m *Manager) lookup(id string) (*Workspace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	return ws, ok
}

func (m *Manager) setActive(n int) {
	if m.metrics != nil {
		m.metrics.ActiveWorkspaces.Set(float64(n))
	}
}
