package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
)

// actorIncidentMgmt is recorded on timeline events the service itself emits.
const actorIncidentMgmt = "incident-management"

// actorOperator is the anonymous author of the "notes" convenience string.
const actorOperator = "operator"

// IncidentStore is the persistence surface the incident service needs.
type IncidentStore interface {
	CreateIncident(ctx context.Context, inc *models.Incident, actor string) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	GetIncidentDetail(ctx context.Context, id string) (*models.IncidentDetail, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, int, error)
	PatchIncident(ctx context.Context, id string, apply func(*models.Incident) (*models.PatchOutcome, error)) (*models.Incident, error)
	Stats(ctx context.Context) (*models.IncidentStats, error)
}

// OncallLookup resolves the current on-call responder for a team.
type OncallLookup interface {
	CurrentOncall(ctx context.Context, team string) (*models.OncallNow, error)
}

// Notifier dispatches a notification request; failures are the caller's to
// tolerate.
type Notifier interface {
	Notify(ctx context.Context, req models.NotifyRequest) error
}

// IncidentService owns the incident lifecycle state machine, MTTA/MTTR
// derivation and the immutable timeline.
type IncidentService struct {
	store       IncidentStore
	oncall      OncallLookup
	notifier    Notifier
	idempotency IdempotencyCache
	teamFor     func(service string) string
	metrics     *metrics.IncidentMetrics
	logger      *slog.Logger
	clock       func() time.Time

	// notifyTimeout bounds the fire-and-forget dispatch goroutine.
	notifyTimeout time.Duration
}

// NewIncidentService wires the incident service and its collaborators.
func NewIncidentService(store IncidentStore, oncall OncallLookup, notifier Notifier, idempotency IdempotencyCache, teamFor func(string) string, m *metrics.IncidentMetrics, logger *slog.Logger, notifyTimeout time.Duration) *IncidentService {
	if teamFor == nil {
		teamFor = func(service string) string { return service }
	}
	return &IncidentService{
		store:         store,
		oncall:        oncall,
		notifier:      notifier,
		idempotency:   idempotency,
		teamFor:       teamFor,
		metrics:       m,
		logger:        logger,
		clock:         func() time.Time { return time.Now().UTC() },
		notifyTimeout: notifyTimeout,
	}
}

// SetClock overrides the time source, for tests.
func (s *IncidentService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// CreateIncident creates an incident, resolves an assignee through on-call
// lookup when none was supplied, and dispatches a notification
// fire-and-forget. When idempotencyKey is non-empty, a repeated key within
// the cache TTL returns the previously created incident.
func (s *IncidentService) CreateIncident(ctx context.Context, req *models.CreateIncidentRequest, idempotencyKey string) (*models.Incident, error) {
	if err := validateCreateIncident(req); err != nil {
		return nil, err
	}

	if idempotencyKey != "" && s.idempotency != nil {
		if id, ok := s.idempotency.Get(ctx, idempotencyKey); ok {
			existing, err := s.store.GetIncident(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			if existing != nil {
				return existing, nil
			}
		}
	}

	now := s.clock()
	inc := &models.Incident{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Service:    req.Service,
		Severity:   req.Severity,
		Status:     models.StatusOpen,
		AssignedTo: req.AssignedTo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var assigneeEmail string
	if inc.AssignedTo == nil {
		name, email := s.lookupAssignee(ctx, inc.Service)
		if name != "" {
			inc.AssignedTo = &name
			assigneeEmail = email
		}
	}

	if err := s.store.CreateIncident(ctx, inc, actorIncidentMgmt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if idempotencyKey != "" && s.idempotency != nil {
		s.idempotency.Set(ctx, idempotencyKey, inc.ID)
	}

	s.metrics.IncidentsCreated.WithLabelValues(string(inc.Severity)).Inc()
	s.metrics.ByStatus.WithLabelValues(string(models.StatusOpen)).Inc()

	s.logger.Info("incident created",
		slog.String("incident_id", inc.ID),
		slog.String("service", inc.Service),
		slog.String("severity", string(inc.Severity)))

	if inc.AssignedTo != nil && assigneeEmail != "" {
		s.dispatchNotification(ctx, inc, assigneeEmail)
	}
	return inc, nil
}

// lookupAssignee asks the on-call service for the team's current primary.
// Failures degrade to no assignee.
func (s *IncidentService) lookupAssignee(ctx context.Context, service string) (name, email string) {
	if s.oncall == nil {
		return "", ""
	}
	team := s.teamFor(service)
	current, err := s.oncall.CurrentOncall(ctx, team)
	if err != nil {
		s.metrics.DependencyDegr.WithLabelValues("oncall").Inc()
		s.logger.Warn("on-call lookup failed, leaving incident unassigned",
			slog.String("team", team),
			slog.String("error", err.Error()))
		return "", ""
	}
	return current.Primary.Name, current.Primary.Email
}

// dispatchNotification notifies the assignee without blocking the caller.
func (s *IncidentService) dispatchNotification(ctx context.Context, inc *models.Incident, recipient string) {
	req := models.NotifyRequest{
		IncidentID: inc.ID,
		Channel:    string(models.ChannelEmail),
		Recipient:  recipient,
		Message:    fmt.Sprintf("[%s] %s (service %s)", inc.Severity, inc.Title, inc.Service),
		Severity:   string(inc.Severity),
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, req); err != nil {
			s.metrics.DependencyDegr.WithLabelValues("notification").Inc()
			s.logger.Warn("notification dispatch failed",
				slog.String("incident_id", inc.ID),
				slog.String("error", err.Error()))
		}
	}()
}

// GetIncident returns the incident with linked alerts, notes and timeline.
func (s *IncidentService) GetIncident(ctx context.Context, id string) (*models.IncidentDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBadID
	}
	detail, err := s.store.GetIncidentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if detail == nil {
		return nil, ErrIncidentNotFound
	}
	return detail, nil
}

// ListIncidents returns a filtered, paginated incident list.
func (s *IncidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter) (*models.IncidentListResponse, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	if filter.Status != "" && !models.IncidentStatus(filter.Status).Valid() {
		return nil, NewValidationError("status", "must be one of: open, acknowledged, in_progress, resolved")
	}
	if filter.Severity != "" && !models.Severity(filter.Severity).Valid() {
		return nil, NewValidationError("severity", "must be one of: critical, high, medium, low")
	}
	incidents, total, err := s.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &models.IncidentListResponse{
		Incidents:  incidents,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// PatchIncident applies the optional status, assignee and note fields in a
// single transaction. Illegal transitions return a conflict without
// mutating the incident.
func (s *IncidentService) PatchIncident(ctx context.Context, id string, req *models.PatchIncidentRequest) (*models.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBadID
	}
	if err := validatePatch(req); err != nil {
		return nil, err
	}

	now := s.clock()
	var oldStatus, newStatus models.IncidentStatus
	var mtta, mttr *float64
	var ackDerived bool

	inc, err := s.store.PatchIncident(ctx, id, func(inc *models.Incident) (*models.PatchOutcome, error) {
		outcome := &models.PatchOutcome{}
		oldStatus, newStatus = inc.Status, inc.Status

		if req.Status != nil && *req.Status != inc.Status {
			if !inc.Status.CanTransitionTo(*req.Status) {
				return nil, NewConflictError("cannot transition from %s to %s", inc.Status, *req.Status)
			}
			hadAck := inc.AcknowledgedAt != nil
			applyTransition(inc, *req.Status, now)
			newStatus = *req.Status
			ackDerived = !hadAck && inc.AcknowledgedAt != nil
			mtta, mttr = inc.MTTASeconds, inc.MTTRSeconds
			outcome.Changed = true
			outcome.Events = append(outcome.Events, models.TimelineEvent{
				IncidentID: inc.ID,
				EventType:  models.EventStatusChanged,
				Actor:      actorOperator,
				Detail:     map[string]any{"from": string(oldStatus), "to": string(*req.Status)},
				CreatedAt:  now,
			})
		}

		if req.AssignedTo != nil && !equalStrPtr(req.AssignedTo, inc.AssignedTo) {
			old := strPtrOrEmpty(inc.AssignedTo)
			inc.AssignedTo = req.AssignedTo
			outcome.Changed = true
			outcome.Events = append(outcome.Events, models.TimelineEvent{
				IncidentID: inc.ID,
				EventType:  models.EventAssigned,
				Actor:      actorOperator,
				Detail:     map[string]any{"from": old, "to": *req.AssignedTo},
				CreatedAt:  now,
			})
		}

		if note := patchNote(req, inc.ID, now); note != nil {
			outcome.Notes = append(outcome.Notes, *note)
			outcome.Events = append(outcome.Events, models.TimelineEvent{
				IncidentID: inc.ID,
				EventType:  models.EventNoteAdded,
				Actor:      note.Author,
				Detail:     map[string]any{"note_id": note.ID},
				CreatedAt:  now,
			})
		}
		return outcome, nil
	})
	if err != nil {
		if IsConflict(err) || IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inc == nil {
		return nil, ErrIncidentNotFound
	}

	if newStatus != oldStatus {
		s.metrics.ByStatus.WithLabelValues(string(oldStatus)).Dec()
		s.metrics.ByStatus.WithLabelValues(string(newStatus)).Inc()
		// MTTA is observed only on the transition that derived it; a
		// resolve after an earlier acknowledgment must not re-observe.
		if mtta != nil && ackDerived {
			s.metrics.MTTASeconds.Observe(*mtta)
		}
		if mttr != nil && newStatus == models.StatusResolved {
			s.metrics.MTTRSeconds.Observe(*mttr)
		}
		s.logger.Info("incident status changed",
			slog.String("incident_id", id),
			slog.String("from", string(oldStatus)),
			slog.String("to", string(newStatus)))
	}
	return inc, nil
}

// applyTransition mutates the incident for a validated status change and
// derives MTTA/MTTR. Resolving an unacknowledged incident implies
// acknowledgment at resolution time.
func applyTransition(inc *models.Incident, next models.IncidentStatus, now time.Time) {
	inc.Status = next

	ackNow := func(at time.Time) {
		if inc.AcknowledgedAt == nil {
			t := at
			inc.AcknowledgedAt = &t
			mtta := at.Sub(inc.CreatedAt).Seconds()
			inc.MTTASeconds = &mtta
		}
	}

	switch next {
	case models.StatusAcknowledged, models.StatusInProgress:
		ackNow(now)
	case models.StatusResolved:
		t := now
		inc.ResolvedAt = &t
		mttr := now.Sub(inc.CreatedAt).Seconds()
		inc.MTTRSeconds = &mttr
		ackNow(now)
	}
}

// Metrics returns the incident's MTTA/MTTR values.
func (s *IncidentService) Metrics(ctx context.Context, id string) (*models.IncidentMetrics, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBadID
	}
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inc == nil {
		return nil, ErrIncidentNotFound
	}
	return &models.IncidentMetrics{
		IncidentID:  inc.ID,
		MTTASeconds: inc.MTTASeconds,
		MTTRSeconds: inc.MTTRSeconds,
	}, nil
}

// Stats returns counts per status and mean MTTA/MTTR.
func (s *IncidentService) Stats(ctx context.Context) (*models.IncidentStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return stats, nil
}

func validateCreateIncident(req *models.CreateIncidentRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return NewValidationError("title", "must not be empty")
	}
	if strings.TrimSpace(req.Service) == "" {
		return NewValidationError("service", "must not be empty")
	}
	if !req.Severity.Valid() {
		return NewValidationError("severity", "must be one of: critical, high, medium, low")
	}
	return nil
}

func validatePatch(req *models.PatchIncidentRequest) error {
	if req.Status == nil && req.AssignedTo == nil && req.Note == nil && strings.TrimSpace(req.Notes) == "" {
		return NewValidationError("", "at least one of status, assigned_to, note must be provided")
	}
	if req.Status != nil && !req.Status.Valid() {
		return NewValidationError("status", "must be one of: open, acknowledged, in_progress, resolved")
	}
	if req.Note != nil {
		if strings.TrimSpace(req.Note.Author) == "" {
			return NewValidationError("note.author", "must not be empty")
		}
		if strings.TrimSpace(req.Note.Content) == "" {
			return NewValidationError("note.content", "must not be empty")
		}
	}
	return nil
}

// patchNote builds the note a PATCH request carries, if any. The "notes"
// convenience string becomes an anonymous operator note.
func patchNote(req *models.PatchIncidentRequest, incidentID string, now time.Time) *models.IncidentNote {
	switch {
	case req.Note != nil:
		return &models.IncidentNote{
			ID:         uuid.NewString(),
			IncidentID: incidentID,
			Author:     req.Note.Author,
			Content:    req.Note.Content,
			CreatedAt:  now,
		}
	case strings.TrimSpace(req.Notes) != "":
		return &models.IncidentNote{
			ID:         uuid.NewString(),
			IncidentID: incidentID,
			Author:     actorOperator,
			Content:    req.Notes,
			CreatedAt:  now,
		}
	}
	return nil
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
