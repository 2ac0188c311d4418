package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
)

// CredentialStore keeps one workspace's bearer token under a single key.
type CredentialStore struct {
	rdb *goredis.Client
	key string
	ttl time.Duration
}

var _ domain.CredentialStore = (*CredentialStore)(nil)

func (s *CredentialStore) Get(ctx context.Context) (string, bool, error) {
	token, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential: %w", err)
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *CredentialStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrEmptyCredential
	}
	if err := s.rdb.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Keyring hands out Redis credential stores keyed by workspace ID.
// ttl bounds how long an abandoned token lingers; it should match the cookie lifetime.
type Keyring struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ domain.CredentialKeyring = (*Keyring)(nil)

func NewKeyring(rdb *goredis.Client, ttl time.Duration) *Keyring {
	return &Keyring{rdb: rdb, ttl: ttl}
}

func (k *Keyring) Store(workspaceID string) domain.CredentialStore {
	return &CredentialStore{rdb: k.rdb, key: credentialKey(workspaceID), ttl: k.ttl}
}

// Forget is a no-op: Clear already deleted the key.
func (k *Keyring) Forget(string) {}

func credentialKey(workspaceID string) string {
	return "workspace:" + workspaceID + ":token"
}
