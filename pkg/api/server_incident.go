package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/services"
)

// IdempotencyKeyHeader deduplicates incident creation when supplied.
const IdempotencyKeyHeader = "Idempotency-Key"

// IncidentServer is the HTTP surface of the incident management service.
type IncidentServer struct {
	incidents *services.IncidentService
	ready     ReadyCheck
	logger    *slog.Logger
}

// NewIncidentServer creates the incident management server.
func NewIncidentServer(incidents *services.IncidentService, ready ReadyCheck, logger *slog.Logger) *IncidentServer {
	return &IncidentServer{incidents: incidents, ready: ready, logger: logger}
}

// Router builds the gin engine with all incident routes.
func (s *IncidentServer) Router(cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	r := newEngine(cfg, s.logger)
	registerOps(r, "incident-management", gatherer, s.ready)

	v1 := r.Group("/api/v1")
	v1.POST("/incidents", s.createIncident)
	v1.GET("/incidents", s.listIncidents)
	v1.GET("/incidents/stats/summary", s.stats)
	v1.GET("/incidents/:id", s.getIncident)
	v1.PATCH("/incidents/:id", s.patchIncident)
	v1.GET("/incidents/:id/metrics", s.incidentMetrics)
	return r
}

func (s *IncidentServer) createIncident(c *gin.Context) {
	var req models.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	inc, err := s.incidents.CreateIncident(c.Request.Context(), &req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (s *IncidentServer) listIncidents(c *gin.Context) {
	filter := models.IncidentFilter{
		Status:   c.Query("status"),
		Severity: c.Query("severity"),
		Service:  c.Query("service"),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}
	resp, err := s.incidents.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *IncidentServer) getIncident(c *gin.Context) {
	detail, err := s.incidents.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *IncidentServer) patchIncident(c *gin.Context) {
	var req models.PatchIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	inc, err := s.incidents.PatchIncident(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (s *IncidentServer) incidentMetrics(c *gin.Context) {
	m, err := s.incidents.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *IncidentServer) stats(c *gin.Context) {
	stats, err := s.incidents.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
