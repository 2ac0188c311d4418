package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
	"github.com/wojkos/ai-platform-wraper/internal/platform/correlation"
	apperrors "github.com/wojkos/ai-platform-wraper/internal/platform/errors"
	"github.com/wojkos/ai-platform-wraper/internal/workspace"
)

const (
	ctxKeyWorkspace   = "workspace"
	ctxKeyWorkspaceID = "workspaceID"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

// loadWorkspace resolves the workspace named by the session cookie, if any.
// Requests without a valid cookie continue without a workspace.
func (s *Server) loadWorkspace(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := s.workspaceID(c)
		if !ok {
			return next(c)
		}

		ws, err := s.workspaces.Get(c.Request().Context(), id)
		if err != nil {
			return apperrors.InternalError("failed to load workspace", err).WithField("workspace_id", id)
		}

		c.SetRequest(c.Request().WithContext(correlation.WithWorkspaceID(c.Request().Context(), id)))
		c.Set(ctxKeyWorkspaceID, id)
		c.Set(ctxKeyWorkspace, ws)
		return next(c)
	}
}

// requireAuth lets only authenticated workspaces through and sends everyone else to the login page.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return s.loadWorkspace(func(c echo.Context) error {
		if _, ok := authenticatedWorkspace(c); !ok {
			return s.redirect(c, "/auth/login")
		}
		return next(c)
	})
}

// requireAPIAuth is requireAuth for JSON endpoints: it answers 401 instead of redirecting.
func (s *Server) requireAPIAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return s.loadWorkspace(func(c echo.Context) error {
		if _, ok := authenticatedWorkspace(c); !ok {
			return apperrors.UnauthorizedError("login required")
		}
		return next(c)
	})
}

func (s *Server) workspaceID(c echo.Context) (string, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return "", false
	}
	raw, ok := session.Values[sessionKeyWorkspaceID].(string)
	if !ok {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func workspaceFrom(c echo.Context) (*workspace.Workspace, bool) {
	ws, ok := c.Get(ctxKeyWorkspace).(*workspace.Workspace)
	return ws, ok && ws != nil
}

func authenticatedWorkspace(c echo.Context) (*workspace.Workspace, bool) {
	ws, ok := workspaceFrom(c)
	if !ok || ws.State() != domain.Authenticated {
		return nil, false
	}
	return ws, true
}

// ErrorHandlingMiddleware renders handler errors as structured JSON. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)
			if m != nil {
				m.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func isXHR(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderXRequestedWith) == "XMLHttpRequest" ||
		c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}

func noContent(c echo.Context) error {
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
