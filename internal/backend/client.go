// Package backend talks to the module backend over HTTP.
//
// The base URL is fixed at construction. Every call goes through one circuit
// breaker so a dead backend fails fast instead of holding request goroutines
// for the full timeout. Authorization failures are answers, not faults, and
// never trip the breaker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
)

const (
	opFetchModules = "fetch_modules"
	opLogin        = "login"
	opHealth       = "health"

	maxBodyBytes = 1 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
	metrics    *metrics.BackendMetrics
}

var (
	_ domain.ModuleRegistry = (*Client)(nil)
	_ domain.TokenIssuer    = (*Client)(nil)
)

// NewClient creates a backend client. baseURL must not end with a slash.
// m may be nil.
func NewClient(baseURL string, timeout time.Duration, m *metrics.BackendMetrics) *Client {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "backend",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		metrics:    m,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// FetchModules requests GET /modules with the bearer token.
// 401 maps to domain.ErrUnauthorized, a bad 2xx body to a malformed NetworkError,
// anything else to a NetworkError.
func (c *Client) FetchModules(ctx context.Context, token string) ([]domain.Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/modules", nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: opFetchModules, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, opFetchModules)
	if err != nil {
		return nil, err
	}

	var modules []domain.Module
	err = json.Unmarshal(body, &modules)
	if err == nil {
		err = domain.ValidateModules(modules)
	}
	if err != nil {
		c.record(opFetchModules, metrics.OutcomeMalformed)
		return nil, &domain.NetworkError{Op: opFetchModules, Err: &domain.MalformedResponseError{Err: err}}
	}
	if modules == nil {
		modules = []domain.Module{}
	}

	c.record(opFetchModules, metrics.OutcomeSuccess)
	return modules, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges username and password for a bearer token via POST /auth/login.
// A 401 maps to domain.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", &domain.NetworkError{Op: opLogin, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, opLogin)
	if errors.Is(err, domain.ErrUnauthorized) {
		return "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.record(opLogin, metrics.OutcomeMalformed)
		return "", &domain.NetworkError{Op: opLogin, Err: &domain.MalformedResponseError{Err: err}}
	}
	if resp.AccessToken == "" {
		c.record(opLogin, metrics.OutcomeMalformed)
		return "", &domain.NetworkError{Op: opLogin, Err: &domain.MalformedResponseError{Err: errors.New("missing access_token")}}
	}

	c.record(opLogin, metrics.OutcomeSuccess)
	return resp.AccessToken, nil
}

// Ping checks GET /health. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &domain.NetworkError{Op: opHealth, Err: err}
	}

	if _, err := c.do(req, opHealth); err != nil {
		return err
	}
	c.record(opHealth, metrics.OutcomeSuccess)
	return nil
}

// do sends req through the circuit breaker and returns the body of a 2xx response.
// Outcomes other than success and malformed are recorded here.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if !c.breaker.TryAcquirePermit() {
		c.record(op, metrics.OutcomeCircuitOpen)
		return nil, &domain.NetworkError{Op: op, Err: circuitbreaker.ErrOpen}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(op, time.Since(start))
	if err != nil {
		c.recordTransportError(req, err)
		c.record(op, metrics.OutcomeError)
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.recordTransportError(req, err)
		c.record(op, metrics.OutcomeError)
		return nil, &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.breaker.RecordSuccess()
		c.record(op, metrics.OutcomeUnauthorized)
		return nil, domain.ErrUnauthorized
	case resp.StatusCode >= 500:
		statusErr := errors.New(http.StatusText(resp.StatusCode))
		c.breaker.RecordError(statusErr)
		c.record(op, metrics.OutcomeError)
		return nil, &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: statusErr}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.breaker.RecordSuccess()
		c.record(op, metrics.OutcomeError)
		return nil, &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	c.breaker.RecordSuccess()
	return body, nil
}

// recordTransportError settles the permit taken for req. Every acquired permit
// must be recorded or the half-open breaker never admits another request.
// A cancelled caller says nothing about backend health, so it counts as success.
func (c *Client) recordTransportError(req *http.Request, err error) {
	if req.Context().Err() != nil {
		c.breaker.RecordSuccess()
		return
	}
	c.breaker.RecordError(err)
}

func (c *Client) record(op, outcome string) {
	if c.metrics != nil {
		c.metrics.Requests.WithLabelValues(op, outcome).Inc()
	}
}

func (c *Client) observe(op string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.Duration.WithLabelValues(op).Observe(d.Seconds())
	}
}
