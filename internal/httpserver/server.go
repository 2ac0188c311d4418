// Package httpserver serves the dashboard over HTTP with echo.
//
// The browser holds a signed cookie carrying only its workspace ID. Every
// request resolves that ID through the workspace manager; the bearer token
// never leaves the server.
package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
	"github.com/wojkos/ai-platform-wraper/internal/platform/config"
	"github.com/wojkos/ai-platform-wraper/internal/workspace"
	"github.com/wojkos/ai-platform-wraper/web"
)

type workspaceManager interface {
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
	Remove(ctx context.Context, id string) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	workspaces workspaceManager

	templates *template.Template

	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	startTime    time.Time
}

func NewServer(cfg *config.Config, workspaces workspaceManager, registry *prometheus.Registry, healthChecks []HealthCheck) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		workspaces:   workspaces,
		templates:    templates,
		sessionStore: setupSessionStore(cfg),
		healthChecks: healthChecks,
		registry:     registry,
		httpMetrics:  metrics.NewHTTPMetrics(registry),
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName           = "platform-wrapper-session"
	sessionKeyWorkspaceID = "workspace_id"
)

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.ErrorContext(c.Request().Context(), "Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func (s *Server) redirect(c echo.Context, path string) error {
	if err := c.Redirect(http.StatusSeeOther, path); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
