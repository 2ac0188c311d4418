// Package credential provides the in-process Credential Store.
//
// MemoryStore survives page reloads (the workspace outlives the request) but
// not a process restart; use the Redis store for that.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
)

type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

var _ domain.CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != "", nil
}

func (s *MemoryStore) Set(_ context.Context, token string) error {
	if token == "" {
		return domain.ErrEmptyCredential
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

type keyringEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryKeyring keeps one token per workspace key across workspace eviction,
// mirroring what a shared Redis would do. Tokens expire ttl after they were
// set, like the Redis keys; a ttl of zero keeps them until cleared.
type MemoryKeyring struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]keyringEntry
}

var _ domain.CredentialKeyring = (*MemoryKeyring)(nil)

func NewMemoryKeyring(clock clockwork.Clock, ttl time.Duration) *MemoryKeyring {
	return &MemoryKeyring{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]keyringEntry),
	}
}

// Store returns a handle on key's entry. Handles hold no state of their own,
// so a handle taken before DropExpired or Forget still writes to the keyring.
func (k *MemoryKeyring) Store(key string) domain.CredentialStore {
	return &keyringStore{keyring: k, key: key}
}

// Forget drops the entry for key. Used after logout so the map does not grow unbounded.
func (k *MemoryKeyring) Forget(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

// DropExpired deletes every expired token and returns how many were removed.
func (k *MemoryKeyring) DropExpired() int {
	now := k.clock.Now()

	k.mu.Lock()
	defer k.mu.Unlock()

	dropped := 0
	for key, e := range k.entries {
		if k.expired(e, now) {
			delete(k.entries, key)
			dropped++
		}
	}
	return dropped
}

// Size reports how many tokens are held.
func (k *MemoryKeyring) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *MemoryKeyring) expired(e keyringEntry, now time.Time) bool {
	return k.ttl > 0 && !now.Before(e.expiresAt)
}

type keyringStore struct {
	keyring *MemoryKeyring
	key     string
}

func (s *keyringStore) Get(_ context.Context) (string, bool, error) {
	k := s.keyring
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[s.key]
	if !ok {
		return "", false, nil
	}
	if k.expired(e, k.clock.Now()) {
		delete(k.entries, s.key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *keyringStore) Set(_ context.Context, token string) error {
	if token == "" {
		return domain.ErrEmptyCredential
	}
	k := s.keyring
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[s.key] = keyringEntry{token: token, expiresAt: k.clock.Now().Add(k.ttl)}
	return nil
}

func (s *keyringStore) Clear(_ context.Context) error {
	k := s.keyring
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, s.key)
	return nil
}
