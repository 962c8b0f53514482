package models

import "time"

// IncidentStatus is the incident lifecycle state.
type IncidentStatus string

const (
	StatusOpen         IncidentStatus = "open"
	StatusAcknowledged IncidentStatus = "acknowledged"
	StatusInProgress   IncidentStatus = "in_progress"
	StatusResolved     IncidentStatus = "resolved"
)

// Valid reports whether s is a known lifecycle state.
func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s → next.
// resolved is terminal.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusAcknowledged || next == StatusInProgress || next == StatusResolved
	case StatusAcknowledged:
		return next == StatusInProgress || next == StatusResolved
	case StatusInProgress:
		return next == StatusResolved
	}
	return false
}

// Incident is a correlation of one or more alerts.
type Incident struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Service        string         `json:"service"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	AssignedTo     *string        `json:"assigned_to"`
	AlertCount     int            `json:"alert_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	MTTASeconds    *float64       `json:"mtta_seconds"`
	MTTRSeconds    *float64       `json:"mttr_seconds"`
}

// TimelineEventType classifies immutable incident audit entries.
type TimelineEventType string

const (
	EventCreated       TimelineEventType = "created"
	EventAlertAttached TimelineEventType = "alert_attached"
	EventStatusChanged TimelineEventType = "status_changed"
	EventAssigned      TimelineEventType = "assigned"
	EventNoteAdded     TimelineEventType = "note_added"

	// EventEscalated is part of the timeline vocabulary; escalations are
	// recorded in the on-call service's own log, not on the incident.
	EventEscalated TimelineEventType = "escalated"
)

// TimelineEvent is an append-only audit entry on an incident.
type TimelineEvent struct {
	ID         string            `json:"id"`
	IncidentID string            `json:"incident_id"`
	EventType  TimelineEventType `json:"event_type"`
	Actor      string            `json:"actor"`
	Detail     map[string]any    `json:"detail,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IncidentNote is an append-only operator note.
type IncidentNote struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateIncidentRequest is the body of POST /api/v1/incidents.
type CreateIncidentRequest struct {
	Title      string   `json:"title"`
	Service    string   `json:"service"`
	Severity   Severity `json:"severity"`
	AssignedTo *string  `json:"assigned_to,omitempty"`
}

// NoteInput is the structured note form accepted on PATCH.
type NoteInput struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// PatchIncidentRequest carries the optional fields of PATCH
// /api/v1/incidents/{id}. Each present field applies independently in a
// single transaction. Notes is a convenience string recorded as an
// anonymous note by the "operator" actor.
type PatchIncidentRequest struct {
	Status     *IncidentStatus `json:"status,omitempty"`
	AssignedTo *string         `json:"assigned_to,omitempty"`
	Note       *NoteInput      `json:"note,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// IncidentFilter contains filtering and pagination options for listing.
type IncidentFilter struct {
	Status   string
	Severity string
	Service  string
	Limit    int
	Offset   int
}

// IncidentListResponse contains a paginated incident list.
type IncidentListResponse struct {
	Incidents  []Incident `json:"incidents"`
	TotalCount int        `json:"total_count"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// IncidentDetail is an incident with its linked alerts, notes and timeline,
// each bounded by a per-incident cap.
type IncidentDetail struct {
	Incident
	Alerts   []Alert         `json:"alerts"`
	Notes    []IncidentNote  `json:"notes"`
	Timeline []TimelineEvent `json:"timeline"`
}

// IncidentMetrics is the response of GET /api/v1/incidents/{id}/metrics.
type IncidentMetrics struct {
	IncidentID  string   `json:"incident_id"`
	MTTASeconds *float64 `json:"mtta_seconds"`
	MTTRSeconds *float64 `json:"mttr_seconds"`
}

// IncidentStats is the response of GET /api/v1/incidents/stats/summary.
type IncidentStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	AvgMTTASeconds *float64       `json:"avg_mtta_seconds"`
	AvgMTTRSeconds *float64       `json:"avg_mttr_seconds"`
}

// PatchOutcome describes the side effects a PATCH application produced.
// The store persists the mutated incident together with these appends in
// one transaction.
type PatchOutcome struct {
	Changed bool
	Events  []TimelineEvent
	Notes   []IncidentNote
}
