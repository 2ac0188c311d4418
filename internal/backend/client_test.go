package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.BackendMetrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.NewBackendMetrics(prometheus.NewRegistry())
	return NewClient(srv.URL, 2*time.Second, m), m
}

const modulesJSON = `[
	{"id": 1, "name": "Chat", "category": "assistants", "description": "LLM chat", "url": "https://chat.example.com", "available": true},
	{"id": "img", "name": "Images", "category": "media", "description": "Image gen", "url": "https://img.example.com", "available": false, "icon": "🎨", "healthEndpoint": "/status"}
]`

func TestFetchModules_Success(t *testing.T) {
	var gotAuth, gotPath string
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(modulesJSON))
	})

	modules, err := client.FetchModules(context.Background(), "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/modules", gotPath)
	require.Len(t, modules, 2)
	assert.Equal(t, domain.ModuleID("1"), modules[0].ID)
	assert.True(t, modules[0].Available)
	assert.Equal(t, domain.ModuleID("img"), modules[1].ID)
	assert.False(t, modules[1].Available)
	assert.Equal(t, "/status", modules[1].HealthEndpoint)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(opFetchModules, metrics.OutcomeSuccess)))
}

func TestFetchModules_EmptyList(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	modules, err := client.FetchModules(context.Background(), "tok")
	require.NoError(t, err)
	assert.NotNil(t, modules)
	assert.Empty(t, modules)
}

func TestFetchModules_Unauthorized(t *testing.T) {
	client, m := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchModules(context.Background(), "expired")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, domain.IsNetworkError(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(opFetchModules, metrics.OutcomeUnauthorized)))
}

func TestFetchModules_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchModules(context.Background(), "tok")
	require.Error(t, err)

	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusInternalServerError, netErr.Status)
	assert.False(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestFetchModules_ForbiddenIsNetworkError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.FetchModules(context.Background(), "tok")
	assert.True(t, domain.IsNetworkError(err))
	assert.False(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestFetchModules_MalformedBody(t *testing.T) {
	client, m := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"modules": "not an array"}`))
	})

	_, err := client.FetchModules(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, domain.IsNetworkError(err))
	assert.True(t, domain.IsMalformedResponse(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(opFetchModules, metrics.OutcomeMalformed)))
}

func TestFetchModules_NullOrMissingIDIsMalformed(t *testing.T) {
	for _, body := range []string{
		`[{"id": null, "name": "Ghost", "available": true}]`,
		`[{"id": "chat", "available": true}, {"name": "Nameless", "available": true}]`,
	} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := client.FetchModules(context.Background(), "tok")
		assert.True(t, domain.IsMalformedResponse(err), body)
		assert.ErrorIs(t, err, domain.ErrEmptyModuleID, body)
	}
}

func TestFetchModules_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second, nil)
	_, err := client.FetchModules(context.Background(), "tok")

	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 0, netErr.Status)
}

func TestFetchModules_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	client, m := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 10 {
		_, _ = client.FetchModules(context.Background(), "tok")
	}

	_, err := client.FetchModules(context.Background(), "tok")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.True(t, domain.IsNetworkError(err))
	assert.Less(t, calls.Load(), int32(11), "open breaker must short-circuit requests")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))
}

func TestFetchModules_UnauthorizedDoesNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	for range 10 {
		_, err := client.FetchModules(context.Background(), "tok")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}
}

func TestFetchModules_CancelledCallReleasesHalfOpenPermit(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(modulesJSON))
	})
	client.breaker.HalfOpen()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.FetchModules(ctx, "tok")
	require.Error(t, err)
	assert.False(t, errors.Is(err, circuitbreaker.ErrOpen))

	for i := 0; i < 3; i++ {
		modules, err := client.FetchModules(context.Background(), "tok")
		require.NoError(t, err, "fetch %d", i)
		assert.Len(t, modules, 2)
	}
	assert.True(t, client.breaker.IsClosed())
}

func TestLogin_Success(t *testing.T) {
	var got loginRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"access_token": "abc", "token_type": "bearer"}`))
	})

	token, err := client.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, loginRequest{Username: "alice", Password: "s3cret"}, got)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_MissingToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token_type": "bearer"}`))
	})

	_, err := client.Login(context.Background(), "alice", "pw")
	assert.True(t, domain.IsMalformedResponse(err))
}

func TestPing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.Ping(context.Background()))
}

func TestPing_Unhealthy(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.True(t, domain.IsNetworkError(client.Ping(context.Background())))
}
