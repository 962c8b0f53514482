// Command oncalld runs the on-call and escalation service: schedules,
// rotation computation, overrides with auto-expiry and the escalation log.
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
	"github.com/pagerd/pagerd/pkg/logging"
	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultOncallPort)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, "oncall")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifyClient := clients.NewNotifyClient(cfg.NotificationServiceURL, cfg.NotificationTimeout, logger)

	reg := prometheus.NewRegistry()
	m := metrics.NewOncallMetrics(reg)

	minHours, maxHours := config.OverrideBounds()
	oncallSvc := services.NewOncallService(services.OncallConfig{
		DefaultOverrideHours: cfg.DefaultOverrideHours,
		MinOverrideHours:     minHours,
		MaxOverrideHours:     maxHours,
		MaxHistorySize:       cfg.MaxHistorySize,
		MaxEscalationLog:     cfg.MaxEscalationLogSize,
	}, notifyClient, m, logger, cfg.NotificationTimeout)

	if cfg.SeedDefaultSchedules {
		oncallSvc.Seed(ctx)
	}

	server := api.NewOncallServer(oncallSvc, m, logger)
	return api.Serve(ctx, logger, cfg.HTTPPort, server.Router(cfg, reg))
}
