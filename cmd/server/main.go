package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/wojkos/ai-platform-wraper/internal/backend"
	"github.com/wojkos/ai-platform-wraper/internal/credential"
	"github.com/wojkos/ai-platform-wraper/internal/domain"
	"github.com/wojkos/ai-platform-wraper/internal/httpserver"
	"github.com/wojkos/ai-platform-wraper/internal/metrics"
	"github.com/wojkos/ai-platform-wraper/internal/platform/config"
	"github.com/wojkos/ai-platform-wraper/internal/platform/logging"
	"github.com/wojkos/ai-platform-wraper/internal/platform/version"
	"github.com/wojkos/ai-platform-wraper/internal/redis"
	"github.com/wojkos/ai-platform-wraper/internal/workspace"
)

const (
	shutdownTimeout   = 10 * time.Second
	redisBootTimeout  = 30 * time.Second
	evictionFrequency = time.Minute
)

func runGracefulShutdown(srv *httpserver.Server, stopEviction func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopEviction()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupCredentials returns the Redis keyring when REDIS_URL is set and the
// in-memory keyring otherwise. The returned client is nil without Redis.
func setupCredentials(cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) (domain.CredentialKeyring, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, credentials are kept in memory and lost on restart")
		return credential.NewMemoryKeyring(clock, cfg.SessionMaxAge), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisBootTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, clock, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return redis.NewKeyring(client, cfg.SessionMaxAge), client
}

func healthChecks(backendClient *backend.Client, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "backend", Check: backendClient.Ping},
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:     "redis",
			Required: true,
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", append(version.Get().LogAttrs(), "env", cfg.AppEnv, "port", cfg.Port, "backend_url", cfg.BackendURL)...)

	reg := metrics.NewRegistry()

	keyring, redisClient := setupCredentials(cfg, clock, reg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, metrics.NewBackendMetrics(reg))

	manager := workspace.NewManager(keyring, backendClient, backendClient, clock, cfg.WorkspaceIdleTTL, metrics.NewWorkspaceMetrics(reg))
	stopEviction := manager.StartEvictionTimer(evictionFrequency)

	srv, err := httpserver.NewServer(cfg, manager, reg, healthChecks(backendClient, redisClient))
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, stopEviction)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
