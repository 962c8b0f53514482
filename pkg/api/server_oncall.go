package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagerd/pagerd/pkg/config"
	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/services"
)

// OncallServer is the HTTP surface of the on-call and escalation service.
type OncallServer struct {
	oncall  *services.OncallService
	metrics *metrics.OncallMetrics
	logger  *slog.Logger
}

// NewOncallServer creates the on-call server.
func NewOncallServer(oncall *services.OncallService, m *metrics.OncallMetrics, logger *slog.Logger) *OncallServer {
	return &OncallServer{oncall: oncall, metrics: m, logger: logger}
}

// Router builds the gin engine with all on-call routes.
func (s *OncallServer) Router(cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	r := newEngine(cfg, s.logger)
	r.Use(RequestCounter(s.metrics.Requests))
	// State is in-memory; the service is ready once it is constructed.
	registerOps(r, "oncall", gatherer, func(context.Context) (any, error) { return nil, nil })

	v1 := r.Group("/api/v1")
	v1.POST("/schedules", s.createSchedule)
	v1.GET("/schedules", s.listSchedules)
	v1.GET("/schedules/:team", s.getSchedule)
	v1.PATCH("/schedules/:team", s.patchSchedule)
	v1.DELETE("/schedules/:team", s.deleteSchedule)

	v1.GET("/oncall/current", s.current)
	v1.POST("/oncall/override", s.setOverride)
	v1.DELETE("/oncall/override/:team", s.clearOverride)
	v1.GET("/oncall/overrides", s.listOverrides)
	v1.GET("/oncall/history", s.history)
	v1.GET("/oncall/stats", s.stats)

	v1.POST("/escalate", s.escalate)
	v1.GET("/escalations", s.listEscalations)
	v1.GET("/teams", s.teams)
	return r
}

func (s *OncallServer) createSchedule(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	sched, err := s.oncall.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

func (s *OncallServer) listSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": s.oncall.ListSchedules(c.Request.Context())})
}

func (s *OncallServer) getSchedule(c *gin.Context) {
	sched, err := s.oncall.GetSchedule(c.Request.Context(), c.Param("team"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *OncallServer) patchSchedule(c *gin.Context) {
	var req models.PatchScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	sched, err := s.oncall.PatchSchedule(c.Request.Context(), c.Param("team"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *OncallServer) deleteSchedule(c *gin.Context) {
	if err := s.oncall.DeleteSchedule(c.Request.Context(), c.Param("team")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *OncallServer) current(c *gin.Context) {
	team := c.Query("team")
	if team == "" {
		respondError(c, services.NewValidationError("team", "query parameter is required"))
		return
	}
	now, err := s.oncall.Current(c.Request.Context(), team)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, now)
}

func (s *OncallServer) setOverride(c *gin.Context) {
	var req models.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	ov, err := s.oncall.SetOverride(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ov)
}

func (s *OncallServer) clearOverride(c *gin.Context) {
	if err := s.oncall.ClearOverride(c.Request.Context(), c.Param("team")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *OncallServer) listOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"overrides": s.oncall.ListOverrides(c.Request.Context())})
}

func (s *OncallServer) escalate(c *gin.Context) {
	var req models.EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	esc, err := s.oncall.Escalate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, esc)
}

func (s *OncallServer) listEscalations(c *gin.Context) {
	escalations := s.oncall.ListEscalations(c.Request.Context(), c.Query("team"), queryInt(c, "limit"))
	c.JSON(http.StatusOK, gin.H{"escalations": escalations})
}

func (s *OncallServer) history(c *gin.Context) {
	events := s.oncall.History(c.Request.Context(), c.Query("team"), c.Query("event_type"), queryInt(c, "limit"))
	c.JSON(http.StatusOK, gin.H{"history": events})
}

func (s *OncallServer) teams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"teams": s.oncall.Teams(c.Request.Context())})
}

func (s *OncallServer) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.oncall.Stats(c.Request.Context()))
}
