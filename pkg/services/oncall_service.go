package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/ring"
)

// ErrNoPrimary rejects schedule writes that would leave a team without a
// primary member. The API layer maps it to 400.
var ErrNoPrimary = errors.New("schedule must have at least one primary member")

// OncallConfig carries the on-call service tunables.
type OncallConfig struct {
	DefaultOverrideHours int
	MinOverrideHours     int
	MaxOverrideHours     int
	MaxHistorySize       int
	MaxEscalationLog     int
}

// OncallService keeps schedules, overrides, the escalation log and the audit
// history in memory under a single read-write lock. Writers serialize
// mutations; readers that only observe state still take the write lock when
// they may expire overrides.
type OncallService struct {
	mu          sync.RWMutex
	schedules   map[string]*models.Schedule
	overrides   map[string]models.Override
	escalations *ring.Buffer[models.Escalation]
	history     *ring.Buffer[models.OncallHistoryEvent]

	// lastPrimary tracks the last observed scheduled primary per team.
	// Process-local and lossy; a restart re-announces the current primary.
	lastPrimary map[string]string

	cfg      OncallConfig
	notifier Notifier
	metrics  *metrics.OncallMetrics
	logger   *slog.Logger
	clock    func() time.Time

	notifyTimeout time.Duration
}

// NewOncallService creates an empty on-call service.
func NewOncallService(cfg OncallConfig, notifier Notifier, m *metrics.OncallMetrics, logger *slog.Logger, notifyTimeout time.Duration) *OncallService {
	return &OncallService{
		schedules:     make(map[string]*models.Schedule),
		overrides:     make(map[string]models.Override),
		escalations:   ring.New[models.Escalation](cfg.MaxEscalationLog),
		history:       ring.New[models.OncallHistoryEvent](cfg.MaxHistorySize),
		lastPrimary:   make(map[string]string),
		cfg:           cfg,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		clock:         func() time.Time { return time.Now().UTC() },
		notifyTimeout: notifyTimeout,
	}
}

// SetClock overrides the time source, for tests.
func (s *OncallService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// CreateSchedule creates or replaces the schedule for a team.
func (s *OncallService) CreateSchedule(_ context.Context, req *models.CreateScheduleRequest) (*models.Schedule, error) {
	if strings.TrimSpace(req.Team) == "" {
		return nil, NewValidationError("team", "must not be empty")
	}
	if !req.RotationType.Valid() {
		return nil, NewValidationError("rotation_type", "must be one of: daily, weekly, biweekly")
	}
	if err := validateMembers(req.Members); err != nil {
		return nil, err
	}
	if !hasPrimary(req.Members) {
		return nil, ErrNoPrimary
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	_, replaced := s.schedules[req.Team]
	sched := &models.Schedule{
		ID:           uuid.NewString(),
		Team:         req.Team,
		RotationType: req.RotationType,
		Members:      append([]models.Member(nil), req.Members...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.schedules[req.Team] = sched

	event := models.HistoryScheduleCreated
	if replaced {
		event = models.HistoryScheduleUpdated
	}
	s.appendHistoryLocked(req.Team, event, map[string]any{
		"rotation_type": string(req.RotationType),
		"members":       len(req.Members),
	})
	s.metrics.ActiveSchedules.Set(float64(len(s.schedules)))
	return copySchedule(sched), nil
}

// ListSchedules returns all schedules ordered by team.
func (s *OncallService) ListSchedules(_ context.Context) []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *copySchedule(sched))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out
}

// GetSchedule returns the schedule for a team.
func (s *OncallService) GetSchedule(_ context.Context, team string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[team]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return copySchedule(sched), nil
}

// PatchSchedule applies partial updates: rotation type, added members and
// removals by name. Removing the last primary fails without state change.
func (s *OncallService) PatchSchedule(_ context.Context, team string, req *models.PatchScheduleRequest) (*models.Schedule, error) {
	if req.RotationType != nil && !req.RotationType.Valid() {
		return nil, NewValidationError("rotation_type", "must be one of: daily, weekly, biweekly")
	}
	if err := validateMembers(req.AddMembers); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[team]
	if !ok {
		return nil, ErrScheduleNotFound
	}

	// Build the candidate member list first so a failed primary check
	// leaves the schedule untouched.
	members := append([]models.Member(nil), sched.Members...)
	if len(req.RemoveMembers) > 0 {
		remove := make(map[string]bool, len(req.RemoveMembers))
		for _, name := range req.RemoveMembers {
			remove[name] = true
		}
		kept := members[:0]
		for _, m := range members {
			if !remove[m.Name] {
				kept = append(kept, m)
			}
		}
		members = kept
	}
	members = append(members, req.AddMembers...)
	if !hasPrimary(members) {
		return nil, ErrNoPrimary
	}

	sched.Members = members
	if req.RotationType != nil {
		sched.RotationType = *req.RotationType
	}
	sched.UpdatedAt = s.clock()

	s.appendHistoryLocked(team, models.HistoryScheduleUpdated, map[string]any{
		"rotation_type": string(sched.RotationType),
		"members":       len(sched.Members),
	})
	return copySchedule(sched), nil
}

// DeleteSchedule removes the schedule and any override for the team.
func (s *OncallService) DeleteSchedule(_ context.Context, team string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[team]; !ok {
		return ErrScheduleNotFound
	}
	delete(s.schedules, team)
	delete(s.overrides, team)
	delete(s.lastPrimary, team)

	s.appendHistoryLocked(team, models.HistoryScheduleDeleted, nil)
	s.metrics.ActiveSchedules.Set(float64(len(s.schedules)))
	s.metrics.OverridesActive.Set(float64(len(s.overrides)))
	return nil
}

// Current resolves the on-call pair for a team at the current instant.
// An active override replaces the scheduled primary; the secondary is
// unaffected. A change of the scheduled primary since the last observation
// emits a rotation-change notification.
func (s *OncallService) Current(ctx context.Context, team string) (*models.OncallNow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.expireOverridesLocked(now)

	sched, ok := s.schedules[team]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	s.metrics.Lookups.WithLabelValues(team).Inc()

	primary, secondary := rotate(sched, now)
	s.observeRotationLocked(ctx, team, primary)

	out := &models.OncallNow{
		Team:         team,
		ScheduleID:   sched.ID,
		RotationType: string(sched.RotationType),
		Primary:      models.OncallPrimary{Name: primary.Name, Email: primary.Email},
	}
	if secondary != nil {
		out.Secondary = &models.Responder{Name: secondary.Name, Email: secondary.Email}
	}
	if ov, ok := s.overrides[team]; ok {
		exp := ov.ExpiresAt
		out.Primary = models.OncallPrimary{
			Name:      ov.UserName,
			Email:     ov.UserEmail,
			Override:  true,
			Reason:    ov.Reason,
			ExpiresAt: &exp,
		}
	}
	return out, nil
}

// rotate computes the scheduled primary and secondary for the instant t.
func rotate(sched *models.Schedule, t time.Time) (models.Member, *models.Member) {
	idx := rotationIndex(sched.RotationType, t)
	primaries := sched.Primaries()
	primary := primaries[idx%len(primaries)]

	secondaries := sched.Secondaries()
	if len(secondaries) == 0 {
		return primary, nil
	}
	secondary := secondaries[idx%len(secondaries)]
	return primary, &secondary
}

// rotationIndex derives the rotation step from the UTC instant.
func rotationIndex(rt models.RotationType, t time.Time) int {
	t = t.UTC()
	switch rt {
	case models.RotationDaily:
		return t.YearDay()
	case models.RotationBiweekly:
		_, week := t.ISOWeek()
		return week / 2
	default: // weekly
		_, week := t.ISOWeek()
		return week
	}
}

// observeRotationLocked emits a rotation-change notification when the
// scheduled primary differs from the last observed one.
func (s *OncallService) observeRotationLocked(ctx context.Context, team string, primary models.Member) {
	last, seen := s.lastPrimary[team]
	s.lastPrimary[team] = primary.Name
	if seen && last == primary.Name {
		return
	}
	s.metrics.RotationChanges.WithLabelValues(team).Inc()
	s.appendHistoryLocked(team, models.HistoryRotationChanged, map[string]any{
		"previous": last,
		"current":  primary.Name,
	})
	s.notifyAsync(ctx, models.NotifyRequest{
		IncidentID: "rotation:" + team,
		Channel:    string(models.ChannelEmail),
		Recipient:  primary.Email,
		Message:    fmt.Sprintf("You are now on-call for team %s", team),
	})
}

// SetOverride installs or replaces the override for a team.
func (s *OncallService) SetOverride(_ context.Context, req *models.OverrideRequest) (*models.Override, error) {
	if strings.TrimSpace(req.Team) == "" {
		return nil, NewValidationError("team", "must not be empty")
	}
	if strings.TrimSpace(req.UserName) == "" {
		return nil, NewValidationError("user_name", "must not be empty")
	}
	if strings.TrimSpace(req.UserEmail) == "" {
		return nil, NewValidationError("user_email", "must not be empty")
	}
	hours := s.cfg.DefaultOverrideHours
	if req.DurationHours != nil {
		hours = *req.DurationHours
	}
	if hours < s.cfg.MinOverrideHours || hours > s.cfg.MaxOverrideHours {
		return nil, NewValidationError("duration_hours",
			fmt.Sprintf("must be in [%d,%d]", s.cfg.MinOverrideHours, s.cfg.MaxOverrideHours))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.expireOverridesLocked(now)

	if _, ok := s.schedules[req.Team]; !ok {
		return nil, ErrScheduleNotFound
	}

	ov := models.Override{
		Team:      req.Team,
		UserName:  req.UserName,
		UserEmail: req.UserEmail,
		Reason:    req.Reason,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(hours) * time.Hour),
	}
	s.overrides[req.Team] = ov

	s.appendHistoryLocked(req.Team, models.HistoryOverrideSet, map[string]any{
		"user_name":  ov.UserName,
		"expires_at": ov.ExpiresAt.Format(time.RFC3339),
	})
	s.metrics.OverridesActive.Set(float64(len(s.overrides)))
	return &ov, nil
}

// ClearOverride removes an active override.
func (s *OncallService) ClearOverride(_ context.Context, team string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireOverridesLocked(s.clock())
	if _, ok := s.overrides[team]; !ok {
		return ErrOverrideNotFound
	}
	delete(s.overrides, team)

	s.appendHistoryLocked(team, models.HistoryOverrideCleared, nil)
	s.metrics.OverridesActive.Set(float64(len(s.overrides)))
	return nil
}

// ListOverrides returns active overrides ordered by team.
func (s *OncallService) ListOverrides(_ context.Context) []models.Override {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireOverridesLocked(s.clock())
	out := make([]models.Override, 0, len(s.overrides))
	for _, ov := range s.overrides {
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out
}

// Escalate transfers responsibility to the team's secondary and records the
// event. The secondary may be absent; the escalation is recorded either way.
func (s *OncallService) Escalate(ctx context.Context, req *models.EscalateRequest) (*models.Escalation, error) {
	if strings.TrimSpace(req.Team) == "" {
		return nil, NewValidationError("team", "must not be empty")
	}
	if strings.TrimSpace(req.IncidentID) == "" {
		return nil, NewValidationError("incident_id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[req.Team]
	if !ok {
		return nil, ErrScheduleNotFound
	}

	now := s.clock()
	_, secondary := rotate(sched, now)

	esc := models.Escalation{
		ID:         uuid.NewString(),
		Team:       req.Team,
		IncidentID: req.IncidentID,
		Reason:     req.Reason,
		CreatedAt:  now,
	}
	if secondary != nil {
		esc.EscalatedTo = &models.Responder{Name: secondary.Name, Email: secondary.Email}
	}
	s.escalations.Append(esc)

	s.metrics.Escalations.WithLabelValues(req.Team).Inc()
	s.appendHistoryLocked(req.Team, models.HistoryEscalated, map[string]any{
		"incident_id":  req.IncidentID,
		"escalated_to": responderName(esc.EscalatedTo),
	})

	if secondary != nil {
		s.notifyAsync(ctx, models.NotifyRequest{
			IncidentID: req.IncidentID,
			Channel:    string(models.ChannelEmail),
			Recipient:  secondary.Email,
			Message:    fmt.Sprintf("Incident %s escalated to you for team %s", req.IncidentID, req.Team),
		})
	}
	return &esc, nil
}

// ListEscalations returns the newest escalations, optionally filtered by
// team, newest first, bounded by limit.
func (s *OncallService) ListEscalations(_ context.Context, team string, limit int) []models.Escalation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.escalations.Items()
	out := make([]models.Escalation, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if team != "" && all[i].Team != team {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// History returns audit events, optionally filtered by team and event type,
// newest first, bounded by limit.
func (s *OncallService) History(_ context.Context, team, eventType string, limit int) []models.OncallHistoryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.history.Items()
	out := make([]models.OncallHistoryEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if team != "" && all[i].Team != team {
			continue
		}
		if eventType != "" && all[i].EventType != eventType {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Teams returns a summary row per schedule, ordered by team.
func (s *OncallService) Teams(_ context.Context) []models.TeamSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireOverridesLocked(s.clock())
	out := make([]models.TeamSummary, 0, len(s.schedules))
	for team, sched := range s.schedules {
		_, hasOverride := s.overrides[team]
		out = append(out, models.TeamSummary{
			Team:         team,
			RotationType: sched.RotationType,
			MemberCount:  len(sched.Members),
			HasOverride:  hasOverride,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out
}

// Stats summarizes the service state.
func (s *OncallService) Stats(_ context.Context) *models.OncallStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireOverridesLocked(s.clock())
	byType := map[string]int{}
	for _, ev := range s.history.Items() {
		byType[ev.EventType]++
	}
	return &models.OncallStats{
		Schedules:       len(s.schedules),
		ActiveOverrides: len(s.overrides),
		Escalations:     s.escalations.Len(),
		HistoryEvents:   s.history.Len(),
		ByEventType:     byType,
	}
}

// Seed installs two example schedules on first start, for demo setups.
func (s *OncallService) Seed(ctx context.Context) {
	for _, req := range []models.CreateScheduleRequest{
		{
			Team:         "platform",
			RotationType: models.RotationWeekly,
			Members: []models.Member{
				{Name: "Alice Chen", Email: "alice@example.com", Role: models.RolePrimary},
				{Name: "Bob Martinez", Email: "bob@example.com", Role: models.RolePrimary},
				{Name: "Carol White", Email: "carol@example.com", Role: models.RoleSecondary},
			},
		},
		{
			Team:         "backend",
			RotationType: models.RotationDaily,
			Members: []models.Member{
				{Name: "Ella Novak", Email: "ella@example.com", Role: models.RolePrimary},
				{Name: "Frank Osei", Email: "frank@example.com", Role: models.RoleSecondary},
			},
		},
	} {
		if _, err := s.CreateSchedule(ctx, &req); err != nil {
			s.logger.Warn("failed to seed schedule",
				slog.String("team", req.Team),
				slog.String("error", err.Error()))
		}
	}
}

// expireOverridesLocked drops overrides whose expiry has passed and records
// an override_expired event for each. Caller holds the write lock.
func (s *OncallService) expireOverridesLocked(now time.Time) {
	for team, ov := range s.overrides {
		if now.Before(ov.ExpiresAt) {
			continue
		}
		delete(s.overrides, team)
		s.appendHistoryLocked(team, models.HistoryOverrideExpired, map[string]any{
			"user_name": ov.UserName,
		})
	}
	s.metrics.OverridesActive.Set(float64(len(s.overrides)))
}

// appendHistoryLocked records one audit event. Caller holds the write lock.
func (s *OncallService) appendHistoryLocked(team, eventType string, detail map[string]any) {
	s.history.Append(models.OncallHistoryEvent{
		ID:        uuid.NewString(),
		Team:      team,
		EventType: eventType,
		Detail:    detail,
		CreatedAt: s.clock(),
	})
}

// notifyAsync dispatches a notification without blocking and without
// failing the caller.
func (s *OncallService) notifyAsync(ctx context.Context, req models.NotifyRequest) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, req); err != nil {
			s.logger.Warn("notification dispatch failed",
				slog.String("incident_id", req.IncidentID),
				slog.String("error", err.Error()))
		}
	}()
}

func validateMembers(members []models.Member) error {
	for _, m := range members {
		if strings.TrimSpace(m.Name) == "" {
			return NewValidationError("members.name", "must not be empty")
		}
		if strings.TrimSpace(m.Email) == "" {
			return NewValidationError("members.email", "must not be empty")
		}
		if m.Role != models.RolePrimary && m.Role != models.RoleSecondary {
			return NewValidationError("members.role", "must be primary or secondary")
		}
	}
	return nil
}

func hasPrimary(members []models.Member) bool {
	for _, m := range members {
		if m.Role == models.RolePrimary {
			return true
		}
	}
	return false
}

func copySchedule(s *models.Schedule) *models.Schedule {
	out := *s
	out.Members = append([]models.Member(nil), s.Members...)
	return &out
}

func responderName(r *models.Responder) string {
	if r == nil {
		return ""
	}
	return r.Name
}
