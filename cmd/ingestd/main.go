// Command ingestd runs the alert ingestion service: validation,
// fingerprinting and time-windowed correlation of alerts into incidents.
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

	cfg, err := config.Load(config.DefaultIngestPort)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, "alert-ingestion")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewClient(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	st := store.New(db.Pool())
	incidentClient := clients.NewIncidentClient(cfg.IncidentManagementURL, cfg.IncidentTimeout, logger)

	reg := prometheus.NewRegistry()
	m := metrics.NewIngestMetrics(reg)

	alertSvc := services.NewAlertService(services.StoreAdapter{Store: st}, incidentClient, cfg.CorrelationWindow, m, logger)
	ready := func(ctx context.Context) (any, error) {
		return database.Health(ctx, db.Pool())
	}
	server := api.NewIngestServer(alertSvc, ready, logger)

	return api.Serve(ctx, logger, cfg.HTTPPort, server.Router(cfg, reg))
}
