package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/wojkos/ai-platform-wraper/internal/platform/errors"
)

func (s *Server) registerAPIRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/api/modules", s.handleGetModules, rateLimiter, s.requireAPIAuth)
}

// handleGetModules returns the workspace snapshot: session state, module list,
// selection, presentation and the last fetch error.
func (s *Server) handleGetModules(c echo.Context) error {
	ws, ok := authenticatedWorkspace(c)
	if !ok {
		return apperrors.UnauthorizedError("login required")
	}

	if err := c.JSON(http.StatusOK, ws.Snapshot()); err != nil {
		return fmt.Errorf("failed to write modules response: %w", err)
	}
	return nil
}
