package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/wojkos/ai-platform-wraper/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck probes one dependency. A failing Required check makes the
// instance unready; any other failure only degrades it, since the dashboard
// can still render and report the problem.
type HealthCheck struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

type checkResult struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type healthReport struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for required dependencies.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	var required []HealthCheck
	for _, hc := range s.healthChecks {
		if hc.Required {
			required = append(required, hc)
		}
	}
	return s.writeHealthReport(c, runHealthChecks(ctx, required))
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Seconds(),
		"version": version.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeHealthReport(c, runHealthChecks(ctx, s.healthChecks))
}

func (s *Server) writeHealthReport(c echo.Context, report healthReport) error {
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to send health report: %w", err)
	}
	return nil
}

// runHealthChecks runs every check so the report names all failing dependencies.
func runHealthChecks(ctx context.Context, checks []HealthCheck) healthReport {
	report := healthReport{Status: "ready", Checks: make([]checkResult, 0, len(checks))}
	for _, hc := range checks {
		start := time.Now()
		err := hc.Check(ctx)
		result := checkResult{Name: hc.Name, OK: err == nil, Duration: time.Since(start).Round(time.Millisecond).String()}
		if err != nil {
			result.Error = err.Error()
			switch {
			case hc.Required:
				report.Status = "unhealthy"
			case report.Status == "ready":
				report.Status = "degraded"
			}
		}
		report.Checks = append(report.Checks, result)
	}
	return report
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
