package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/wojkos/ai-platform-wraper/internal/domain"
)

type mockRegistry struct {
	mu      sync.Mutex
	calls   int
	tokens  []string
	fetchFn func(ctx context.Context, token string) ([]domain.Module, error)
}

func (m *mockRegistry) FetchModules(ctx context.Context, token string) ([]domain.Module, error) {
	m.mu.Lock()
	m.calls++
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()

	if m.fetchFn != nil {
		return m.fetchFn(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockRegistry) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockIssuer struct {
	loginFn func(ctx context.Context, username, password string) (string, error)
}

func (m *mockIssuer) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", errors.New("not implemented")
}

type mockStore struct {
	getFn   func(ctx context.Context) (string, bool, error)
	setFn   func(ctx context.Context, token string) error
	clearFn func(ctx context.Context) error
}

func (m *mockStore) Get(ctx context.Context) (string, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return "", false, nil
}

func (m *mockStore) Set(ctx context.Context, token string) error {
	if m.setFn != nil {
		return m.setFn(ctx, token)
	}
	return nil
}

func (m *mockStore) Clear(ctx context.Context) error {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	return nil
}

func returnModules(modules ...domain.Module) func(context.Context, string) ([]domain.Module, error) {
	return func(context.Context, string) ([]domain.Module, error) {
		return modules, nil
	}
}

func module(id string, available bool) domain.Module {
	return domain.Module{
		ID:        domain.ModuleID(id),
		Name:      "Module " + id,
		Category:  "tools",
		URL:       "https://" + id + ".example.com/app",
		Available: available,
	}
}
