package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/services"
)

// IngestServer is the HTTP surface of the alert ingestion service.
type IngestServer struct {
	alerts *services.AlertService
	ready  ReadyCheck
	logger *slog.Logger
}

// NewIngestServer creates the ingestion server. ready checks persistence
// reachability for the readiness endpoint.
func NewIngestServer(alerts *services.AlertService, ready ReadyCheck, logger *slog.Logger) *IngestServer {
	return &IngestServer{alerts: alerts, ready: ready, logger: logger}
}

// Router builds the gin engine with all ingestion routes.
func (s *IngestServer) Router(cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	r := newEngine(cfg, s.logger)
	registerOps(r, "alert-ingestion", gatherer, s.ready)

	v1 := r.Group("/api/v1")
	v1.POST("/alerts", s.ingestAlert)
	v1.GET("/alerts/:id", s.getAlert)
	v1.GET("/alerts", s.listAlerts)
	return r
}

func (s *IngestServer) ingestAlert(c *gin.Context) {
	var req models.IngestAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	resp, err := s.alerts.Ingest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *IngestServer) getAlert(c *gin.Context) {
	alert, err := s.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *IngestServer) listAlerts(c *gin.Context) {
	filter := models.AlertFilter{
		Service:    c.Query("service"),
		Severity:   c.Query("severity"),
		IncidentID: c.Query("incident_id"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}
	resp, err := s.alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
