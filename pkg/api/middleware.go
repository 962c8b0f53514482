package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagerd/pagerd/pkg/requestid"
)

// RequestID accepts an inbound X-Request-ID or generates one, stores it on
// the request context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestid.Header)
		if id == "" {
			id = requestid.New()
		}
		c.Request = c.Request.WithContext(requestid.WithContext(c.Request.Context(), id))
		c.Header(requestid.Header, id)
		c.Next()
	}
}

// RequestLogger emits one structured log line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", requestid.FromContext(c.Request.Context())))
	}
}

// APIKeyAuth enforces a shared API key via the X-API-Key header. With an
// empty key the check is disabled; health and metrics are always exempt.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		switch c.FullPath() {
		case "/health", "/health/ready", "/metrics":
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Detail:    "invalid or missing API key",
				RequestID: requestid.FromContext(c.Request.Context()),
			})
			return
		}
		c.Next()
	}
}

// CORS builds the CORS middleware from the configured origin allowlist.
// With no origins configured, cross-origin requests are not allowed.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-API-Key", requestid.Header)
	return cors.New(cfg)
}

// RequestCounter counts requests by method, route template and status.
func RequestCounter(counter *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		counter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
