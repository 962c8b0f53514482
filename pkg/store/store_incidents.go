package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pagerd/pagerd/pkg/models"
)

// Per-incident caps on the detail view collections.
const (
	maxDetailAlerts   = 100
	maxDetailNotes    = 100
	maxDetailTimeline = 200
)

// CreateIncident persists a new incident and its created timeline event in
// one transaction.
func (s *Store) CreateIncident(ctx context.Context, inc *models.Incident, actor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO incidents (id, title, service, severity, status, assigned_to, alert_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`,
		inc.ID, inc.Title, inc.Service, inc.Severity, inc.Status, inc.AssignedTo, inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	err = insertTimelineEvent(ctx, tx, models.TimelineEvent{
		IncidentID: inc.ID,
		EventType:  models.EventCreated,
		Actor:      actor,
		Detail:     map[string]any{"service": inc.Service, "severity": string(inc.Severity)},
	})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetIncident returns one incident by id, or nil when absent.
func (s *Store) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return scanIncident(row)
}

// GetIncidentDetail returns the incident with its linked alerts, notes and
// timeline, each bounded by a per-incident cap. Returns nil when absent.
func (s *Store) GetIncidentDetail(ctx context.Context, id string) (*models.IncidentDetail, error) {
	inc, err := s.GetIncident(ctx, id)
	if err != nil || inc == nil {
		return nil, err
	}

	detail := &models.IncidentDetail{
		Incident: *inc,
		Alerts:   []models.Alert{},
		Notes:    []models.IncidentNote{},
		Timeline: []models.TimelineEvent{},
	}

	alerts, _, err := s.ListAlerts(ctx, models.AlertFilter{IncidentID: id, Limit: maxDetailAlerts})
	if err != nil {
		return nil, err
	}
	detail.Alerts = alerts

	rows, err := s.pool.Query(ctx, `
		SELECT id, incident_id, author, content, created_at
		FROM incident_notes WHERE incident_id = $1
		ORDER BY created_at ASC LIMIT $2`, id, maxDetailNotes)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n models.IncidentNote
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.Author, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		detail.Notes = append(detail.Notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	events, err := s.listTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Timeline = events
	return detail, nil
}

func (s *Store) listTimeline(ctx context.Context, incidentID string) ([]models.TimelineEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, incident_id, event_type, actor, detail, created_at
		FROM incident_timeline WHERE incident_id = $1
		ORDER BY created_at ASC LIMIT $2`, incidentID, maxDetailTimeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}
	defer rows.Close()

	events := []models.TimelineEvent{}
	for rows.Next() {
		var (
			ev     models.TimelineEvent
			detail []byte
		)
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.EventType, &ev.Actor, &detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeline: %w", err)
	}
	return events, nil
}

// ListIncidents returns incidents matching the filter, newest first, plus
// the total count before pagination.
func (s *Store) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, int, error) {
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
	if filter.Status != "" {
		addCond("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		addCond("severity = $%d", filter.Severity)
	}
	if filter.Service != "" {
		addCond("service = $%d", filter.Service)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []models.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return incidents, total, nil
}

// PatchIncident loads the incident under a row lock, applies the mutation
// function and persists the result plus any timeline events and notes the
// mutation produced, all in one transaction. Returns (nil, nil) when the
// incident does not exist. Errors from apply abort the transaction and are
// returned unchanged.
func (s *Store) PatchIncident(ctx context.Context, id string, apply func(*models.Incident) (*models.PatchOutcome, error)) (*models.Incident, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, id)
	inc, err := scanIncident(row)
	if err != nil || inc == nil {
		return nil, err
	}

	outcome, err := apply(inc)
	if err != nil {
		return nil, err
	}

	if outcome.Changed {
		_, err = tx.Exec(ctx, `
			UPDATE incidents
			SET status = $1, assigned_to = $2, acknowledged_at = $3, resolved_at = $4,
			    mtta_seconds = $5, mttr_seconds = $6
			WHERE id = $7`,
			inc.Status, inc.AssignedTo, inc.AcknowledgedAt, inc.ResolvedAt,
			inc.MTTASeconds, inc.MTTRSeconds, id)
		if err != nil {
			return nil, fmt.Errorf("failed to update incident: %w", err)
		}
		// Pick up the trigger-maintained updated_at.
		if err := tx.QueryRow(ctx, `SELECT updated_at FROM incidents WHERE id = $1`, id).Scan(&inc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to read updated_at: %w", err)
		}
	}

	for _, ev := range outcome.Events {
		if err := insertTimelineEvent(ctx, tx, ev); err != nil {
			return nil, err
		}
	}
	for _, note := range outcome.Notes {
		if err := insertNote(ctx, tx, note); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit patch: %w", err)
	}
	return inc, nil
}

// Stats aggregates incident counts by status and average MTTA/MTTR over the
// incidents that have them.
func (s *Store) Stats(ctx context.Context) (*models.IncidentStats, error) {
	stats := &models.IncidentStats{ByStatus: map[string]int{}}

	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM incidents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate incidents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT avg(mtta_seconds), avg(mttr_seconds) FROM incidents`).
		Scan(&stats.AvgMTTASeconds, &stats.AvgMTTRSeconds)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("failed to aggregate metrics: %w", err)
	}
	return stats, nil
}

func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
