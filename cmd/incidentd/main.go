// Command incidentd runs the incident management service: the lifecycle
// state machine, MTTA/MTTR derivation, the immutable timeline, and the
// on-call and notification cross-service calls.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pagerd/pagerd/pkg/api"
	"github.com/pagerd/pagerd/pkg/clients"
	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/database"
	"github.com/pagerd/pagerd/pkg/logging"
	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/services"
	"github.com/pagerd/pagerd/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultIncidentPort)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, "incident-management")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewClient(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	st := store.New(db.Pool())
	oncallClient := clients.NewOncallClient(cfg.OncallServiceURL, cfg.OncallTimeout, logger)
	notifyClient := clients.NewNotifyClient(cfg.NotificationServiceURL, cfg.NotificationTimeout, logger)

	idempotency, err := buildIdempotencyCache(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewIncidentMetrics(reg)

	incidentSvc := services.NewIncidentService(st, oncallClient, notifyClient, idempotency,
		cfg.TeamFor, m, logger, cfg.NotificationTimeout)
	ready := func(ctx context.Context) (any, error) {
		return database.Health(ctx, db.Pool())
	}
	server := api.NewIncidentServer(incidentSvc, ready, logger)

	return api.Serve(ctx, logger, cfg.HTTPPort, server.Router(cfg, reg))
}

// buildIdempotencyCache uses Redis when configured so deduplication spans
// replicas, with an in-process fallback otherwise.
func buildIdempotencyCache(cfg *config.Config, logger *slog.Logger) (services.IdempotencyCache, error) {
	if cfg.RedisURL == "" {
		return services.NewMemoryIdempotencyCache(cfg.IdempotencyTTL), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return services.NewRedisIdempotencyCache(redis.NewClient(opts), cfg.IdempotencyTTL, logger), nil
}
