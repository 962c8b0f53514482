package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagerd/pagerd/pkg/models"
)

// Correlation is a transaction that serializes alert correlation for one
// (service, severity) pair. The advisory lock taken at Begin is released
// automatically at commit or rollback. Exactly one of Commit or Rollback
// must be called; Rollback after Commit is a no-op.
type Correlation struct {
	tx       pgx.Tx
	service  string
	severity string
}

// BeginCorrelation opens a transaction and takes the per-(service, severity)
// advisory lock, blocking concurrent correlation of the same pair until this
// transaction ends.
func (s *Store) BeginCorrelation(ctx context.Context, service, severity string) (*Correlation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin correlation: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, service+"|"+severity); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to take correlation lock: %w", err)
	}
	return &Correlation{tx: tx, service: service, severity: severity}, nil
}

// Commit finalizes the transaction.
func (c *Correlation) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

// Rollback aborts the transaction.
func (c *Correlation) Rollback(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}

// FindOpenIncident returns the newest unresolved incident for the locked
// (service, severity) pair created within the correlation window, or nil.
func (c *Correlation) FindOpenIncident(ctx context.Context, window time.Duration, now time.Time) (*models.Incident, error) {
	row := c.tx.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE service = $1 AND severity = $2 AND status != 'resolved' AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`,
		c.service, c.severity, now.Add(-window))
	return scanIncident(row)
}

// InsertAlert persists a new alert inside the correlation transaction.
// IncidentID may be nil; AttachAlert links it afterwards.
func (c *Correlation) InsertAlert(ctx context.Context, a *models.Alert) error {
	var labels any
	if len(a.Labels) > 0 {
		b, err := json.Marshal(a.Labels)
		if err != nil {
			return fmt.Errorf("failed to encode alert labels: %w", err)
		}
		labels = b
	}
	_, err := c.tx.Exec(ctx, `
		INSERT INTO alerts (id, service, severity, message, labels, source, fingerprint, timestamp, incident_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Service, a.Severity, a.Message, labels, a.Source, a.Fingerprint,
		a.Timestamp, a.IncidentID, a.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// AttachAlert links the alert to the incident, increments the incident's
// alert count and records an alert_attached timeline event, all within the
// correlation transaction.
func (c *Correlation) AttachAlert(ctx context.Context, alertID, incidentID, actor string) error {
	if _, err := c.tx.Exec(ctx,
		`UPDATE alerts SET incident_id = $1 WHERE id = $2`, incidentID, alertID); err != nil {
		return fmt.Errorf("failed to link alert: %w", err)
	}
	if _, err := c.tx.Exec(ctx,
		`UPDATE incidents SET alert_count = alert_count + 1 WHERE id = $1`, incidentID); err != nil {
		return fmt.Errorf("failed to bump alert count: %w", err)
	}
	return insertTimelineEvent(ctx, c.tx, models.TimelineEvent{
		IncidentID: incidentID,
		EventType:  models.EventAlertAttached,
		Actor:      actor,
		Detail:     map[string]any{"alert_id": alertID},
	})
}

// InsertIncidentFallback creates an incident locally when the incident
// management service is unreachable, recording the created event with the
// fallback actor.
func (c *Correlation) InsertIncidentFallback(ctx context.Context, inc *models.Incident, actor string) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO incidents (id, title, service, severity, status, assigned_to, alert_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`,
		inc.ID, inc.Title, inc.Service, inc.Severity, inc.Status, inc.AssignedTo, inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fallback incident: %w", err)
	}
	return insertTimelineEvent(ctx, c.tx, models.TimelineEvent{
		IncidentID: inc.ID,
		EventType:  models.EventCreated,
		Actor:      actor,
		Detail:     map[string]any{"service": inc.Service, "severity": string(inc.Severity)},
	})
}

// GetAlert returns one alert by id, or nil when absent.
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

// ListAlerts returns alerts matching the filter, newest first, plus the
// total count before pagination.
func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	where := ""
	args := []any{}
	argNum := 1
	addCond := func(cond string, val any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, argNum)
		args = append(args, val)
		argNum++
	}
	if filter.Service != "" {
		addCond("service = $%d", filter.Service)
	}
	if filter.Severity != "" {
		addCond("severity = $%d", filter.Severity)
	}
	if filter.IncidentID != "" {
		addCond("incident_id = $%d", filter.IncidentID)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		fmt.Sprintf(` ORDER BY received_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, total, nil
}
