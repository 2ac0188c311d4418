package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
)

// Transition reasons recorded in metrics and logs.
const (
	reasonRestore      = "restore"
	reasonLogin        = "login"
	reasonLogout       = "logout"
	reasonUnauthorized = "unauthorized"
)

// Workspace is the dashboard state of one browser.
//
// mu guards every field below it. It is held across Credential Store calls but
// never across a backend request.
type Workspace struct {
	id       string
	store    domain.CredentialStore
	registry domain.ModuleRegistry
	issuer   domain.TokenIssuer
	clock    clockwork.Clock
	metrics  *metrics.WorkspaceMetrics

	mu        sync.Mutex
	state     domain.SessionState
	token     string
	modules   []domain.Module
	selection Selection
	lastErr   error
	epoch     uint64
	issued    uint64
	applied   uint64
	lastSeen  time.Time
}

// ticket captures the session a fetch was issued for.
type ticket struct {
	epoch uint64
	seq   uint64
	token string
}

// New creates an unauthenticated workspace. Call Restore to pick up a stored token.
// m may be nil.
func New(id string, store domain.CredentialStore, registry domain.ModuleRegistry, issuer domain.TokenIssuer, clock clockwork.Clock, m *metrics.WorkspaceMetrics) *Workspace {
	return &Workspace{
		id:       id,
		store:    store,
		registry: registry,
		issuer:   issuer,
		clock:    clock,
		metrics:  m,
		state:    domain.Unauthenticated,
		lastSeen: clock.Now(),
	}
}

func (w *Workspace) ID() string { return w.id }

func (w *Workspace) State() domain.SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Restore reads the Credential Store and, if a token is present, optimistically
// enters the authenticated state and fetches the module list once.
// Only Credential Store failures are returned; the fetch outcome is in Snapshot.
func (w *Workspace) Restore(ctx context.Context) error {
	w.mu.Lock()
	token, ok, err := w.store.Get(ctx)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok {
		w.mu.Unlock()
		return nil
	}
	w.enterAuthenticatedLocked(token, reasonRestore)
	w.mu.Unlock()

	w.refreshAfterEntry(ctx)
	return nil
}

// Authenticate exchanges username and password for a token and logs in with it.
// A rejected login leaves the current session untouched.
func (w *Workspace) Authenticate(ctx context.Context, username, password string) error {
	token, err := w.issuer.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return w.Login(ctx, token)
}

// Login persists token and enters the authenticated state, then fetches the
// module list once. Logging in while already authenticated starts a new session:
// modules and selection are cleared and results of the old session are dropped.
func (w *Workspace) Login(ctx context.Context, token string) error {
	w.mu.Lock()
	if err := w.store.Set(ctx, token); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to store credential: %w", err)
	}
	w.enterAuthenticatedLocked(token, reasonLogin)
	w.mu.Unlock()

	w.refreshAfterEntry(ctx)
	return nil
}

// Logout clears the credential, the module list and the selection. It is
// idempotent and never calls the backend. In-memory state is cleared even when
// the Credential Store fails.
func (w *Workspace) Logout(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logoutLocked(ctx, reasonLogout)
}

// OnUnauthorized is Logout triggered by the backend rejecting the credential.
func (w *Workspace) OnUnauthorized(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logoutLocked(ctx, reasonUnauthorized)
}

// Refresh fetches the module list with the current credential.
// It returns domain.ErrNotAuthenticated without a session, domain.ErrUnauthorized
// after a forced logout, domain.ErrStaleResult if a newer result won, or the
// fetch error.
func (w *Workspace) Refresh(ctx context.Context) error {
	w.mu.Lock()
	if w.state != domain.Authenticated {
		w.mu.Unlock()
		return domain.ErrNotAuthenticated
	}
	w.issued++
	t := ticket{epoch: w.epoch, seq: w.issued, token: w.token}
	w.mu.Unlock()

	modules, err := w.registry.FetchModules(ctx, t.token)
	return w.apply(ctx, t, modules, err)
}

// SelectByID selects the module with id from the current list.
// Unknown and unavailable modules are rejected silently; the return value
// reports whether the selection changed.
func (w *Workspace) SelectByID(id domain.ModuleID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := domain.FindModule(w.modules, id)
	if !ok {
		return false
	}
	return w.selection.Select(m)
}

// Snapshot is a consistent copy of the workspace state.
type Snapshot struct {
	State     domain.SessionState `json:"state"`
	Modules   []domain.Module     `json:"modules"`
	Selected  *domain.Module      `json:"selected,omitempty"`
	View      View                `json:"presentation"`
	LastError string              `json:"last_error,omitempty"`
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:   w.state,
		Modules: slices.Clone(w.modules),
	}
	if snap.Modules == nil {
		snap.Modules = []domain.Module{}
	}
	var selected *domain.Module
	if m, ok := w.selection.Current(); ok {
		selected = &m
	}
	snap.View = Present(selected, snap.Modules)
	// Selected reports the module as the latest list has it, matching the view.
	snap.Selected = snap.View.Module
	if w.lastErr != nil {
		snap.LastError = w.lastErr.Error()
	}
	return snap
}

// Touch marks the workspace as used now.
func (w *Workspace) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = w.clock.Now()
}

func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

func (w *Workspace) enterAuthenticatedLocked(token, reason string) {
	w.epoch++
	w.state = domain.Authenticated
	w.token = token
	w.modules = nil
	w.selection.Clear()
	w.lastErr = nil
	w.recordTransition(domain.Authenticated, reason)
	slog.Info("Session authenticated", "workspace_id", w.id, "reason", reason)
}

func (w *Workspace) logoutLocked(ctx context.Context, reason string) error {
	wasAuthenticated := w.state == domain.Authenticated

	w.epoch++
	w.state = domain.Unauthenticated
	w.token = ""
	w.modules = nil
	w.selection.Clear()
	w.lastErr = nil

	if wasAuthenticated {
		w.recordTransition(domain.Unauthenticated, reason)
		slog.Info("Session ended", "workspace_id", w.id, "reason", reason)
	}

	if err := w.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// refreshAfterEntry runs the single fetch that follows entering the
// authenticated state. Its outcome is recorded on the workspace.
func (w *Workspace) refreshAfterEntry(ctx context.Context) {
	err := w.Refresh(ctx)
	if err != nil && !errors.Is(err, domain.ErrStaleResult) && !errors.Is(err, domain.ErrNotAuthenticated) {
		slog.DebugContext(ctx, "Initial module fetch failed", "workspace_id", w.id, "error", err)
	}
}

func (w *Workspace) apply(ctx context.Context, t ticket, modules []domain.Module, fetchErr error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t.epoch != w.epoch {
		w.recordStale()
		slog.DebugContext(ctx, "Dropped module list from an ended session", "workspace_id", w.id, "seq", t.seq)
		return domain.ErrStaleResult
	}

	// Same epoch means the same credential, so a rejection is current even if a
	// newer fetch was issued in the meantime.
	if errors.Is(fetchErr, domain.ErrUnauthorized) {
		slog.WarnContext(ctx, "Backend rejected credential, logging out", "workspace_id", w.id)
		if err := w.logoutLocked(ctx, reasonUnauthorized); err != nil {
			slog.ErrorContext(ctx, "Failed to clear credential after rejection", "workspace_id", w.id, "error", err)
		}
		return domain.ErrUnauthorized
	}

	if t.seq <= w.applied {
		w.recordStale()
		slog.DebugContext(ctx, "Dropped superseded module list", "workspace_id", w.id, "seq", t.seq, "applied", w.applied)
		return domain.ErrStaleResult
	}
	w.applied = t.seq

	if fetchErr != nil {
		w.lastErr = fetchErr
		slog.WarnContext(ctx, "Module list fetch failed", "workspace_id", w.id, "error", fetchErr)
		return fetchErr
	}

	w.modules = slices.Clone(modules)
	w.lastErr = nil
	w.selection.selectDefault(w.modules)
	slog.InfoContext(ctx, "Module list refreshed", "workspace_id", w.id, "count", len(w.modules))
	return nil
}

func (w *Workspace) recordTransition(to domain.SessionState, reason string) {
	if w.metrics != nil {
		w.metrics.Transitions.WithLabelValues(to.String(), reason).Inc()
	}
}

func (w *Workspace) recordStale() {
	if w.metrics != nil {
		w.metrics.StaleResults.Inc()
	}
}
