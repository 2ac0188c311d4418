package httpserver

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/wojkos/ai-platform-wraper/internal/credential"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
	"github.com/wojkos/ai-platform-wraper/internal/platform/config"
	"github.com/wojkos/ai-platform-wraper/internal/workspace"
)

// --- Mock implementations ---

type mockRegistry struct {
	fetchModulesFn func(ctx context.Context, token string) ([]domain.Module, error)
}

func (m *mockRegistry) FetchModules(ctx context.Context, token string) ([]domain.Module, error) {
	if m.fetchModulesFn != nil {
		return m.fetchModulesFn(ctx, token)
	}
	return []domain.Module{}, nil
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

type mockManager struct {
	getFn    func(ctx context.Context, id string) (*workspace.Workspace, error)
	removeFn func(ctx context.Context, id string) error
}

func (m *mockManager) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockManager) Remove(ctx context.Context, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

// --- Test helpers ---

const testWorkspaceID = "0b9e7a52-7f38-4c4a-9d55-1f5a4f1b2c3d"

var testModules = []domain.Module{
	{ID: "chat", Name: "Chat", Category: "assistants", URL: "https://chat.example.com/app", Available: true},
	{ID: "img", Name: "Images", Category: "media", URL: "https://img.example.com", Available: false},
	{ID: "code", Name: "Code", Category: "dev", URL: "https://code.example.com", Available: true},
}

type testEnv struct {
	srv      *Server
	manager  *workspace.Manager
	keyring  *credential.MemoryKeyring
	registry *mockRegistry
	issuer   *mockIssuer
}

func newTestServer(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	tmpl := template.Must(template.New("login.html").Parse(`Login {{.Error}}`))
	template.Must(tmpl.New("dashboard.html").Parse(
		`Dashboard {{.View.State}} [{{range .Modules}}{{.Name}};{{end}}] frame={{.View.FrameURL}} sandbox={{.View.Sandbox}} error={{.LastError}}`))

	store := sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!!"))
	store.Options = &sessions.Options{
		Path:   "/",
		MaxAge: 3600,
	}

	env := &testEnv{
		keyring:  credential.NewMemoryKeyring(clockwork.NewFakeClock(), time.Hour),
		registry: &mockRegistry{fetchModulesFn: func(context.Context, string) ([]domain.Module, error) { return testModules, nil }},
		issuer:   &mockIssuer{},
	}
	for _, opt := range opts {
		opt(env)
	}

	env.manager = workspace.NewManager(env.keyring, env.registry, env.issuer, clockwork.NewFakeClock(), time.Hour, nil)

	reg := prometheus.NewRegistry()
	env.srv = &Server{
		echo:         echo.New(),
		config:       &config.Config{SessionMaxAge: time.Hour},
		workspaces:   env.manager,
		sessionStore: store,
		templates:    tmpl,
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
	}

	// Register routes so endpoints are available for testing
	env.srv.registerRoutes()

	return env
}

func withRegistry(fn func(ctx context.Context, token string) ([]domain.Module, error)) func(*testEnv) {
	return func(env *testEnv) {
		env.registry.fetchModulesFn = fn
	}
}

func withIssuer(fn func(ctx context.Context, username, password string) (string, error)) func(*testEnv) {
	return func(env *testEnv) {
		env.issuer.loginFn = fn
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware(nil)(handler)(c)
}

func setSessionWorkspaceID(t *testing.T, srv *Server, req *http.Request, rec *httptest.ResponseRecorder, id string) {
	t.Helper()
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyWorkspaceID] = id
	require.NoError(t, session.Save(req, rec))
}

// login authenticates testWorkspaceID and returns the session cookies naming it.
func (env *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	ws, err := env.manager.Get(context.Background(), testWorkspaceID)
	require.NoError(t, err)
	require.NoError(t, ws.Login(context.Background(), "test-token"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	setSessionWorkspaceID(t, env.srv, req, rec, testWorkspaceID)
	return rec.Result().Cookies()
}

func newRequest(method, target string, form url.Values, cookies []*http.Cookie) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
