package models

import "time"

// Severity is the shared alert/incident severity scale.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the four allowed severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Alert is a single external observation. Alerts are immutable after
// ingestion except for the incident back-reference set during correlation.
type Alert struct {
	ID          string            `json:"id"`
	Service     string            `json:"service"`
	Severity    Severity          `json:"severity"`
	Message     string            `json:"message"`
	Labels      map[string]string `json:"labels,omitempty"`
	Source      string            `json:"source,omitempty"`
	Fingerprint string            `json:"fingerprint"`
	Timestamp   time.Time         `json:"timestamp"`
	IncidentID  *string           `json:"incident_id"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// IngestAlertRequest is the body of POST /api/v1/alerts.
type IngestAlertRequest struct {
	Service   string            `json:"service"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels,omitempty"`
	Source    string            `json:"source,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

// Correlation actions reported to the poster.
const (
	ActionNewIncident      = "new_incident"
	ActionAttachedExisting = "attached_to_existing_incident"
)

// IngestAlertResponse is the body returned by POST /api/v1/alerts.
type IngestAlertResponse struct {
	AlertID    string `json:"alert_id"`
	IncidentID string `json:"incident_id"`
	Status     string `json:"status"`
	Action     string `json:"action"`
}

// AlertFilter contains filtering and pagination options for listing alerts.
type AlertFilter struct {
	Service    string
	Severity   string
	IncidentID string
	Limit      int
	Offset     int
}

// AlertListResponse contains a paginated alert list.
type AlertListResponse struct {
	Alerts     []Alert `json:"alerts"`
	TotalCount int     `json:"total_count"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}
