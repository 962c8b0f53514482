// Command notifyd runs the notification service: channel-dispatched
// delivery with a bounded in-memory log.
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
	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/logging"
	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/services"
	"github.com/pagerd/pagerd/pkg/services/channels"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultNotifyPort)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, "notification")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.NewNotifyMetrics(reg)

	handlers := channels.Registry(cfg.EmailEndpoint, cfg.SlackEndpoint, cfg.WebhookURL,
		cfg.NotificationTimeout, logger)
	notifySvc := services.NewNotificationService(cfg.MaxLogSize, handlers, m, logger)

	server := api.NewNotifyServer(notifySvc, logger)
	return api.Serve(ctx, logger, cfg.HTTPPort, server.Router(cfg, reg))
}
