package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/version"
)

// readyTimeout bounds the readiness dependency check.
const readyTimeout = 2 * time.Second

// shutdownTimeout bounds draining of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests up to the shutdown deadline.
func Serve(ctx context.Context, logger *slog.Logger, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newEngine builds a gin engine with the shared middleware stack.
func newEngine(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(APIKeyAuth(cfg.APIKey))
	return r
}

// ReadyCheck reports whether backing dependencies are reachable. The detail
// value, when non-nil, is included in the readiness body (the DB-backed
// services return their pool statistics here).
type ReadyCheck func(ctx context.Context) (any, error)

// registerOps mounts the uniform health and metrics endpoints.
func registerOps(r *gin.Engine, service string, gatherer prometheus.Gatherer, ready ReadyCheck) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   service,
			"version":   version.Full(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		detail, err := ready(ctx)
		if err != nil {
			body := gin.H{
				"status": "not ready",
				"error":  err.Error(),
			}
			if detail != nil {
				body["database"] = detail
			}
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body := gin.H{"status": "ready"}
		if detail != nil {
			body["database"] = detail
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
