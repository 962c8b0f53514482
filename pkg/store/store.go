// Package store implements PostgreSQL persistence for alerts, incidents,
// notes and timeline events using raw SQL over a pgx connection pool.
//
// Lookup methods return (nil, nil) when the row does not exist; callers map
// that to their own not-found error.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagerd/pagerd/pkg/models"
)

// Store provides persistence operations backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const incidentColumns = `id, title, service, severity, status, assigned_to, alert_count,
	created_at, updated_at, acknowledged_at, resolved_at, mtta_seconds, mttr_seconds`

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var inc models.Incident
	err := row.Scan(&inc.ID, &inc.Title, &inc.Service, &inc.Severity, &inc.Status,
		&inc.AssignedTo, &inc.AlertCount, &inc.CreatedAt, &inc.UpdatedAt,
		&inc.AcknowledgedAt, &inc.ResolvedAt, &inc.MTTASeconds, &inc.MTTRSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}
	return &inc, nil
}

const alertColumns = `id, service, severity, message, labels, source, fingerprint,
	timestamp, incident_id, received_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var (
		a      models.Alert
		labels []byte
	)
	err := row.Scan(&a.ID, &a.Service, &a.Severity, &a.Message, &labels, &a.Source,
		&a.Fingerprint, &a.Timestamp, &a.IncidentID, &a.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &a.Labels); err != nil {
			return nil, fmt.Errorf("failed to decode alert labels: %w", err)
		}
	}
	return &a, nil
}

// insertTimelineEvent appends one immutable timeline entry.
func insertTimelineEvent(ctx context.Context, q querier, ev models.TimelineEvent) error {
	detail, err := marshalJSONB(ev.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode event detail: %w", err)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err = q.Exec(ctx, `
		INSERT INTO incident_timeline (id, incident_id, event_type, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.IncidentID, ev.EventType, ev.Actor, detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert timeline event: %w", err)
	}
	return nil
}

func insertNote(ctx context.Context, q querier, note models.IncidentNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO incident_notes (id, incident_id, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		note.ID, note.IncidentID, note.Author, note.Content, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// marshalJSONB encodes m for a JSONB column, mapping empty to SQL NULL.
func marshalJSONB(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
