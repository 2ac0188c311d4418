package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
)

func loginForm(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

// --- landing ---

func TestHandleLanding_Unauthenticated(t *testing.T) {
	env := newTestServer(t)

	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, newRequest(http.MethodGet, "/", nil, nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestHandleLanding_Authenticated(t *testing.T) {
	env := newTestServer(t)
	cookies := env.login(t)

	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, newRequest(http.MethodGet, "/", nil, cookies))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

// --- login page ---

func TestHandleLoginPage_RendersForm(t *testing.T) {
	env := newTestServer(t)

	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, newRequest(http.MethodGet, "/auth/login", nil, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Login")
	assert.NotNil(t, findCookie(rec.Result().Cookies(), "csrf_token"), "login form needs a CSRF cookie")
}

func TestHandleLoginPage_AuthenticatedRedirects(t *testing.T) {
	env := newTestServer(t)
	cookies := env.login(t)

	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, newRequest(http.MethodGet, "/auth/login", nil, cookies))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

// --- login ---

func TestHandleLogin_Success(t *testing.T) {
	env := newTestServer(t, withIssuer(func(_ context.Context, username, password string) (string, error) {
		if username == "alice" && password == "s3cret" {
			return "issued-token", nil
		}
		return "", domain.ErrInvalidCredentials
	}))

	req := newRequest(http.MethodPost, "/auth/login", loginForm("  alice ", "s3cret"), nil)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	err := callHandler(env.srv.loadWorkspace(env.srv.handleLogin), c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	follow := newRequest(http.MethodGet, "/dashboard", nil, rec.Result().Cookies())
	id, ok := env.srv.workspaceID(env.srv.echo.NewContext(follow, httptest.NewRecorder()))
	require.True(t, ok, "session cookie must name the new workspace")

	ws, err := env.manager.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.Authenticated, ws.State())

	token, ok, err := env.keyring.Store(id).Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "issued-token", token)
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	env := newTestServer(t, withIssuer(func(context.Context, string, string) (string, error) {
		return "", domain.ErrInvalidCredentials
	}))

	req := newRequest(http.MethodPost, "/auth/login", loginForm("alice", "wrong"), nil)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	err := callHandler(env.srv.loadWorkspace(env.srv.handleLogin), c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	assert.Equal(t, 0, env.manager.Size(), "failed login must not leave a workspace behind")

	page := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(page, newRequest(http.MethodGet, "/auth/login", nil, rec.Result().Cookies()))
	assert.Contains(t, page.Body.String(), flashInvalidCredentials)
}

func TestHandleLogin_BackendUnavailable(t *testing.T) {
	env := newTestServer(t, withIssuer(func(context.Context, string, string) (string, error) {
		return "", &domain.NetworkError{Op: "login", Err: errors.New("connection refused")}
	}))

	req := newRequest(http.MethodPost, "/auth/login", loginForm("alice", "pw"), nil)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	require.NoError(t, callHandler(env.srv.loadWorkspace(env.srv.handleLogin), c))

	page := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(page, newRequest(http.MethodGet, "/auth/login", nil, rec.Result().Cookies()))
	assert.Contains(t, page.Body.String(), flashBackendUnavailable)
}

func TestHandleLogin_MissingFields(t *testing.T) {
	called := false
	env := newTestServer(t, withIssuer(func(context.Context, string, string) (string, error) {
		called = true
		return "tok", nil
	}))

	req := newRequest(http.MethodPost, "/auth/login", loginForm("alice", ""), nil)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	require.NoError(t, callHandler(env.srv.loadWorkspace(env.srv.handleLogin), c))

	assert.False(t, called)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestHandleLogin_ReplacesPreviousWorkspace(t *testing.T) {
	env := newTestServer(t, withIssuer(func(context.Context, string, string) (string, error) {
		return "second-token", nil
	}))
	cookies := env.login(t)

	req := newRequest(http.MethodPost, "/auth/login", loginForm("alice", "pw"), cookies)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	require.NoError(t, callHandler(env.srv.loadWorkspace(env.srv.handleLogin), c))

	follow := newRequest(http.MethodGet, "/dashboard", nil, rec.Result().Cookies())
	id, ok := env.srv.workspaceID(env.srv.echo.NewContext(follow, httptest.NewRecorder()))
	require.True(t, ok)
	assert.NotEqual(t, testWorkspaceID, id, "login must issue a fresh workspace id")

	_, ok, err := env.keyring.Store(testWorkspaceID).Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "previous workspace credential must be cleared")
}

// --- logout ---

func TestHandleLogout(t *testing.T) {
	env := newTestServer(t)
	cookies := env.login(t)

	req := newRequest(http.MethodPost, "/auth/logout", url.Values{}, cookies)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	err := callHandler(env.srv.handleLogout, c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	session := findCookie(rec.Result().Cookies(), sessionName)
	require.NotNil(t, session)
	assert.Less(t, session.MaxAge, 0, "session cookie must be expired")

	_, ok, err := env.keyring.Store(testWorkspaceID).Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, env.manager.Size())
}

func TestHandleLogout_WithoutSession(t *testing.T) {
	env := newTestServer(t)

	req := newRequest(http.MethodPost, "/auth/logout", url.Values{}, nil)
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	require.NoError(t, callHandler(env.srv.handleLogout, c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestHandleLogout_XHR(t *testing.T) {
	env := newTestServer(t)
	cookies := env.login(t)

	req := newRequest(http.MethodPost, "/auth/logout", url.Values{}, cookies)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()
	c := env.srv.echo.NewContext(req, rec)

	require.NoError(t, callHandler(env.srv.handleLogout, c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
