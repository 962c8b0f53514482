package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagerd/pagerd/pkg/fingerprint"
	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/store"
)

// Actors recorded on timeline events produced during ingestion.
const (
	actorIngestion = "alert-ingestion"
	actorFallback  = "alert-ingestion-fallback"
)

// titleWordLimit caps how many leading message words form a synthesized
// incident title.
const titleWordLimit = 8

// resultFallbackLocal labels locally created incidents in the correlation
// outcome counter. The API response still reports a new incident.
const resultFallbackLocal = "fallback_local"

// CorrelationTx is one serialized correlation decision. Implementations
// hold a per-(service, severity) lock until Commit or Rollback.
type CorrelationTx interface {
	FindOpenIncident(ctx context.Context, window time.Duration, now time.Time) (*models.Incident, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
	AttachAlert(ctx context.Context, alertID, incidentID, actor string) error
	InsertIncidentFallback(ctx context.Context, inc *models.Incident, actor string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AlertStore is the persistence surface the alert service needs.
type AlertStore interface {
	BeginCorrelation(ctx context.Context, service, severity string) (CorrelationTx, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error)
}

// IncidentCreator creates incidents through the incident management service.
type IncidentCreator interface {
	CreateIncident(ctx context.Context, req models.CreateIncidentRequest) (*models.Incident, error)
}

// AlertService validates, fingerprints and correlates incoming alerts.
type AlertService struct {
	store     AlertStore
	incidents IncidentCreator
	window    time.Duration
	metrics   *metrics.IngestMetrics
	logger    *slog.Logger
	clock     func() time.Time
}

// NewAlertService creates an alert service with the given correlation window.
func NewAlertService(store AlertStore, incidents IncidentCreator, window time.Duration, m *metrics.IngestMetrics, logger *slog.Logger) *AlertService {
	return &AlertService{
		store:     store,
		incidents: incidents,
		window:    window,
		metrics:   m,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *AlertService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Ingest validates the request, persists the alert and correlates it to an
// open incident within the window, creating a new incident on miss. The
// correlation decision is serialized per (service, severity).
func (s *AlertService) Ingest(ctx context.Context, req *models.IngestAlertRequest) (*models.IngestAlertResponse, error) {
	if err := validateIngest(req); err != nil {
		return nil, err
	}

	now := s.clock()
	start := now
	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	alert := &models.Alert{
		ID:          uuid.NewString(),
		Service:     req.Service,
		Severity:    req.Severity,
		Message:     req.Message,
		Labels:      req.Labels,
		Source:      req.Source,
		Fingerprint: fingerprint.Compute(req.Service, string(req.Severity), req.Message),
		Timestamp:   ts,
		ReceivedAt:  now,
	}

	corr, err := s.store.BeginCorrelation(ctx, req.Service, string(req.Severity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = corr.Rollback(ctx) }()

	if err := corr.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	existing, err := corr.FindOpenIncident(ctx, s.window, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var (
		incidentID string
		action     string
		result     string
	)
	if existing != nil {
		if err := corr.AttachAlert(ctx, alert.ID, existing.ID, actorIngestion); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		incidentID = existing.ID
		action = models.ActionAttachedExisting
		result = action
	} else {
		incidentID, result, err = s.createIncident(ctx, corr, alert)
		if err != nil {
			return nil, err
		}
		action = models.ActionNewIncident
	}

	if err := corr.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metrics.AlertsReceived.WithLabelValues(string(alert.Severity)).Inc()
	s.metrics.AlertsCorrelated.WithLabelValues(result).Inc()
	s.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())

	s.logger.Info("alert ingested",
		slog.String("alert_id", alert.ID),
		slog.String("incident_id", incidentID),
		slog.String("service", alert.Service),
		slog.String("severity", string(alert.Severity)),
		slog.String("action", action))

	return &models.IngestAlertResponse{
		AlertID:    alert.ID,
		IncidentID: incidentID,
		Status:     "correlated",
		Action:     action,
	}, nil
}

// createIncident asks incident management to create the incident; when the
// remote call fails after its retry budget, the incident is inserted locally
// so ingestion stays live under partial failure. The second return value is
// the correlation outcome label.
func (s *AlertService) createIncident(ctx context.Context, corr CorrelationTx, alert *models.Alert) (string, string, error) {
	req := models.CreateIncidentRequest{
		Title:    synthesizeTitle(alert.Message),
		Service:  alert.Service,
		Severity: alert.Severity,
	}

	remote, err := s.incidents.CreateIncident(ctx, req)
	if err == nil {
		if attachErr := corr.AttachAlert(ctx, alert.ID, remote.ID, actorIngestion); attachErr != nil {
			return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, attachErr)
		}
		return remote.ID, models.ActionNewIncident, nil
	}

	s.logger.Warn("incident management unreachable, creating incident locally",
		slog.String("alert_id", alert.ID),
		slog.String("error", err.Error()))
	s.metrics.FallbackCreates.Inc()

	inc := &models.Incident{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Service:   req.Service,
		Severity:  req.Severity,
		Status:    models.StatusOpen,
		CreatedAt: s.clock(),
	}
	if err := corr.InsertIncidentFallback(ctx, inc, actorFallback); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := corr.AttachAlert(ctx, alert.ID, inc.ID, actorFallback); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return inc.ID, resultFallbackLocal, nil
}

// GetAlert returns one alert by id.
func (s *AlertService) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBadID
	}
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// ListAlerts returns a filtered, paginated alert list.
func (s *AlertService) ListAlerts(ctx context.Context, filter models.AlertFilter) (*models.AlertListResponse, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	if filter.Severity != "" && !models.Severity(filter.Severity).Valid() {
		return nil, NewValidationError("severity", "must be one of: critical, high, medium, low")
	}
	alerts, total, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &models.AlertListResponse{
		Alerts:     alerts,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func validateIngest(req *models.IngestAlertRequest) error {
	if strings.TrimSpace(req.Service) == "" {
		return NewValidationError("service", "must not be empty")
	}
	if !req.Severity.Valid() {
		return NewValidationError("severity", "must be one of: critical, high, medium, low")
	}
	if strings.TrimSpace(req.Message) == "" {
		return NewValidationError("message", "must not be empty")
	}
	return nil
}

// synthesizeTitle builds an incident title from the leading message words.
func synthesizeTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
		return strings.Join(words, " ") + "..."
	}
	return strings.Join(words, " ")
}

// StoreAdapter bridges the concrete store to the AlertStore interface; the
// embedded methods already match.
type StoreAdapter struct {
	*store.Store
}

func (a StoreAdapter) BeginCorrelation(ctx context.Context, service, severity string) (CorrelationTx, error) {
	return a.Store.BeginCorrelation(ctx, service, severity)
}

// clampPage normalizes pagination: default limit 50, max 500, offset >= 0.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
