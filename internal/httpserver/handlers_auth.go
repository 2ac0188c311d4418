package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	apperrors "github.com/wojkos/ai-platform-wraper/internal/platform/errors"
)

const (
	loginTimeout   = 15 * time.Second
	maxUsernameLen = 256
	maxPasswordLen = 1024

	flashInvalidCredentials = "Invalid username or password."
	flashMissingCredentials = "Username and password are required."
	flashBackendUnavailable = "The login service is unavailable. Please try again."
)

func (s *Server) registerAuthRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/auth/login", s.handleLoginPage, s.loadWorkspace, csrfMiddleware)
	s.echo.POST("/auth/login", s.handleLogin, rateLimiter, s.loadWorkspace, csrfMiddleware)
	s.echo.POST("/auth/logout", s.handleLogout, csrfMiddleware)
}

func (s *Server) handleLanding(c echo.Context) error {
	if _, ok := authenticatedWorkspace(c); ok {
		return s.redirect(c, "/dashboard")
	}
	return s.redirect(c, "/auth/login")
}

func (s *Server) handleLoginPage(c echo.Context) error {
	if _, ok := authenticatedWorkspace(c); ok {
		return s.redirect(c, "/dashboard")
	}

	data := map[string]any{
		"Error":     s.popFlash(c),
		"CSRFToken": c.Get("csrf"),
	}
	return s.renderTemplate(c, "login.html", data)
}

func (s *Server) handleLogin(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	if username == "" || password == "" {
		return s.loginFailed(c, flashMissingCredentials)
	}
	if len(username) > maxUsernameLen || len(password) > maxPasswordLen {
		return apperrors.ValidationError("credentials too long")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), loginTimeout)
	defer cancel()

	// A fresh workspace per login keeps a pre-login cookie from being fixated
	// onto the authenticated session.
	newID := uuid.NewString()
	ws, err := s.workspaces.Get(ctx, newID)
	if err != nil {
		return apperrors.InternalError("failed to create workspace", err)
	}

	if err := ws.Authenticate(ctx, username, password); err != nil {
		if rmErr := s.workspaces.Remove(ctx, newID); rmErr != nil {
			slog.WarnContext(ctx, "Failed to discard workspace after failed login", "workspace_id", newID, "error", rmErr)
		}

		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			slog.InfoContext(ctx, "Login rejected", "username", username)
			return s.loginFailed(c, flashInvalidCredentials)
		case domain.IsNetworkError(err):
			slog.WarnContext(ctx, "Login backend unavailable", "error", err)
			return s.loginFailed(c, flashBackendUnavailable)
		default:
			return apperrors.InternalError("failed to log in", err)
		}
	}

	if oldID, ok := c.Get(ctxKeyWorkspaceID).(string); ok {
		if err := s.workspaces.Remove(ctx, oldID); err != nil {
			slog.WarnContext(ctx, "Failed to discard previous workspace", "workspace_id", oldID, "error", err)
		}
	}

	if err := s.saveWorkspaceID(c, newID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "User logged in", "workspace_id", newID, "username", username)
	return s.redirect(c, "/dashboard")
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	if id, ok := s.workspaceID(c); ok {
		if err := s.workspaces.Remove(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to clear workspace during logout", "workspace_id", id, "error", err)
		}
		slog.InfoContext(ctx, "User logged out", "workspace_id", id)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		session, err = s.sessionStore.New(c.Request(), sessionName)
		if err != nil {
			return apperrors.InternalError("failed to create new session during logout", err)
		}
	}
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	if isXHR(c) {
		return noContent(c)
	}
	return s.redirect(c, "/auth/login")
}

// saveWorkspaceID replaces the session cookie with one naming only id.
func (s *Server) saveWorkspaceID(c echo.Context, id string) error {
	session, err := s.sessionStore.New(c.Request(), sessionName)
	if err != nil && session == nil {
		return apperrors.InternalError("failed to create session", err)
	}
	session.Values = map[any]any{sessionKeyWorkspaceID: id}
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	return nil
}

func (s *Server) loginFailed(c echo.Context, message string) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.AddFlash(message)
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	return s.redirect(c, "/auth/login")
}

func (s *Server) popFlash(c echo.Context) string {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return ""
	}
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return ""
	}
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to clear flash", "error", err)
	}
	msg, _ := flashes[0].(string)
	return msg
}

