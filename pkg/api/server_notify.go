package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/services"
)

// NotifyServer is the HTTP surface of the notification service.
type NotifyServer struct {
	notifications *services.NotificationService
	logger        *slog.Logger
}

// NewNotifyServer creates the notification server.
func NewNotifyServer(notifications *services.NotificationService, logger *slog.Logger) *NotifyServer {
	return &NotifyServer{notifications: notifications, logger: logger}
}

// Router builds the gin engine with all notification routes.
func (s *NotifyServer) Router(cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	r := newEngine(cfg, s.logger)
	registerOps(r, "notification", gatherer, func(context.Context) (any, error) { return nil, nil })

	v1 := r.Group("/api/v1")
	v1.POST("/notify", s.notify)
	v1.GET("/notifications", s.listNotifications)
	v1.GET("/notifications/stats/summary", s.stats)
	v1.GET("/notifications/:id", s.getNotification)
	return r
}

// notify responds 200 regardless of delivery outcome; the stored entry's
// status carries the result.
func (s *NotifyServer) notify(c *gin.Context) {
	var req models.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	n, err := s.notifications.Notify(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *NotifyServer) getNotification(c *gin.Context) {
	n, err := s.notifications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *NotifyServer) listNotifications(c *gin.Context) {
	filter := models.NotificationFilter{
		Channel:    c.Query("channel"),
		Status:     c.Query("status"),
		IncidentID: c.Query("incident_id"),
		Recipient:  c.Query("recipient"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}
	c.JSON(http.StatusOK, s.notifications.List(c.Request.Context(), filter))
}

func (s *NotifyServer) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.notifications.Stats(c.Request.Context()))
}
