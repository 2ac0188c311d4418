package httpserver

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	apperrors "github.com/wojkos/ai-platform-wraper/internal/platform/errors"
	"github.com/wojkos/ai-platform-wraper/internal/workspace"
)

const maxModuleIDLen = 128

func (s *Server) registerDashboardRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/dashboard", s.handleDashboard, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.POST("/dashboard/select", s.handleSelect, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.POST("/dashboard/refresh", s.handleRefresh, rateLimiter, s.requireAuth, csrfMiddleware)
}

type dashboardPage struct {
	workspace.Snapshot
	CSRFToken any
}

func (s *Server) handleDashboard(c echo.Context) error {
	ws, ok := authenticatedWorkspace(c)
	if !ok {
		return apperrors.InternalError("missing workspace in context", nil)
	}

	// Rendering never changes state; selection goes through the CSRF-checked POST.
	snap := ws.Snapshot()
	c.Response().Header().Set(echo.HeaderContentSecurityPolicy, contentSecurityPolicy(snap.View.FrameOrigin))

	return s.renderTemplate(c, "dashboard.html", dashboardPage{
		Snapshot:  snap,
		CSRFToken: c.Get("csrf"),
	})
}

func (s *Server) handleSelect(c echo.Context) error {
	ws, ok := authenticatedWorkspace(c)
	if !ok {
		return apperrors.InternalError("missing workspace in context", nil)
	}

	id, err := parseModuleID(c.FormValue("module_id"))
	if err != nil {
		return err
	}
	ws.SelectByID(id)

	if isXHR(c) {
		return noContent(c)
	}
	return s.redirect(c, "/dashboard")
}

func (s *Server) handleRefresh(c echo.Context) error {
	ws, ok := authenticatedWorkspace(c)
	if !ok {
		return apperrors.InternalError("missing workspace in context", nil)
	}

	err := ws.Refresh(c.Request().Context())
	if errors.Is(err, domain.ErrUnauthorized) {
		if isXHR(c) {
			return apperrors.UnauthorizedError("session expired")
		}
		return s.redirect(c, "/auth/login")
	}
	// Network failures are recorded on the workspace and shown on the dashboard.

	if isXHR(c) {
		return noContent(c)
	}
	return s.redirect(c, "/dashboard")
}

func parseModuleID(raw string) (domain.ModuleID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.ValidationError("module id is required")
	}
	if len(raw) > maxModuleIDLen {
		return "", apperrors.ValidationError("module id too long")
	}
	return domain.ModuleID(raw), nil
}
