package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pagerd/pagerd/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAlertStore keeps alerts and incidents in memory and hands out
// transactions that mutate it directly.
type fakeAlertStore struct {
	mu        sync.Mutex
	alerts    map[string]*models.Alert
	incidents map[string]*models.Incident
	beginErr  error
	commits   int
	rollbacks int
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{
		alerts:    make(map[string]*models.Alert),
		incidents: make(map[string]*models.Incident),
	}
}

func (f *fakeAlertStore) BeginCorrelation(_ context.Context, service, severity string) (CorrelationTx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeCorrelation{store: f, service: service, severity: severity}, nil
}

func (f *fakeAlertStore) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[id], nil
}

func (f *fakeAlertStore) ListAlerts(_ context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Alert
	for _, a := range f.alerts {
		if filter.Service != "" && a.Service != filter.Service {
			continue
		}
		if filter.Severity != "" && string(a.Severity) != filter.Severity {
			continue
		}
		if filter.IncidentID != "" && (a.IncidentID == nil || *a.IncidentID != filter.IncidentID) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

type fakeCorrelation struct {
	store    *fakeAlertStore
	service  string
	severity string
	done     bool
}

func (c *fakeCorrelation) FindOpenIncident(_ context.Context, window time.Duration, now time.Time) (*models.Incident, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	var newest *models.Incident
	for _, inc := range c.store.incidents {
		if inc.Service != c.service || string(inc.Severity) != c.severity {
			continue
		}
		if inc.Status == models.StatusResolved {
			continue
		}
		if inc.CreatedAt.Before(now.Add(-window)) {
			continue
		}
		if newest == nil || inc.CreatedAt.After(newest.CreatedAt) {
			newest = inc
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (c *fakeCorrelation) InsertAlert(_ context.Context, a *models.Alert) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cp := *a
	c.store.alerts[a.ID] = &cp
	return nil
}

func (c *fakeCorrelation) AttachAlert(_ context.Context, alertID, incidentID, _ string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if a, ok := c.store.alerts[alertID]; ok {
		id := incidentID
		a.IncidentID = &id
	}
	if inc, ok := c.store.incidents[incidentID]; ok {
		inc.AlertCount++
	}
	return nil
}

func (c *fakeCorrelation) InsertIncidentFallback(_ context.Context, inc *models.Incident, _ string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cp := *inc
	c.store.incidents[inc.ID] = &cp
	return nil
}

func (c *fakeCorrelation) Commit(context.Context) error {
	if c.done {
		return errors.New("already finished")
	}
	c.done = true
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.commits++
	return nil
}

func (c *fakeCorrelation) Rollback(context.Context) error {
	if c.done {
		return nil
	}
	c.done = true
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.rollbacks++
	return nil
}

// fakeIncidentCreator stands in for the incident management client.
type fakeIncidentCreator struct {
	mu       sync.Mutex
	err      error
	created  []models.CreateIncidentRequest
	response *models.Incident
}

func (f *fakeIncidentCreator) CreateIncident(_ context.Context, req models.CreateIncidentRequest) (*models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return f.response, nil
}

// fakeIncidentStore implements IncidentStore in memory.
type fakeIncidentStore struct {
	mu        sync.Mutex
	incidents map[string]*models.Incident
	events    []models.TimelineEvent
	notes     []models.IncidentNote
	createErr error
}

func newFakeIncidentStore() *fakeIncidentStore {
	return &fakeIncidentStore{incidents: make(map[string]*models.Incident)}
}

func (f *fakeIncidentStore) CreateIncident(_ context.Context, inc *models.Incident, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *inc
	f.incidents[inc.ID] = &cp
	f.events = append(f.events, models.TimelineEvent{
		IncidentID: inc.ID,
		EventType:  models.EventCreated,
		Actor:      actor,
		CreatedAt:  inc.CreatedAt,
	})
	return nil
}

func (f *fakeIncidentStore) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (f *fakeIncidentStore) GetIncidentDetail(ctx context.Context, id string) (*models.IncidentDetail, error) {
	inc, err := f.GetIncident(ctx, id)
	if err != nil || inc == nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	detail := &models.IncidentDetail{Incident: *inc, Alerts: []models.Alert{}}
	for _, ev := range f.events {
		if ev.IncidentID == id {
			detail.Timeline = append(detail.Timeline, ev)
		}
	}
	for _, n := range f.notes {
		if n.IncidentID == id {
			detail.Notes = append(detail.Notes, n)
		}
	}
	return detail, nil
}

func (f *fakeIncidentStore) ListIncidents(_ context.Context, filter models.IncidentFilter) ([]models.Incident, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Incident
	for _, inc := range f.incidents {
		if filter.Status != "" && string(inc.Status) != filter.Status {
			continue
		}
		if filter.Severity != "" && string(inc.Severity) != filter.Severity {
			continue
		}
		if filter.Service != "" && inc.Service != filter.Service {
			continue
		}
		out = append(out, *inc)
	}
	return out, len(out), nil
}

func (f *fakeIncidentStore) PatchIncident(_ context.Context, id string, apply func(*models.Incident) (*models.PatchOutcome, error)) (*models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return nil, nil
	}
	work := *inc
	outcome, err := apply(&work)
	if err != nil {
		return nil, err
	}
	if outcome.Changed {
		work.UpdatedAt = time.Now().UTC()
		*inc = work
	}
	f.events = append(f.events, outcome.Events...)
	f.notes = append(f.notes, outcome.Notes...)
	cp := work
	return &cp, nil
}

func (f *fakeIncidentStore) Stats(_ context.Context) (*models.IncidentStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.IncidentStats{ByStatus: map[string]int{}}
	for _, inc := range f.incidents {
		stats.ByStatus[string(inc.Status)]++
		stats.Total++
	}
	return stats, nil
}

func (f *fakeIncidentStore) eventsOfType(id string, et models.TimelineEventType) []models.TimelineEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TimelineEvent
	for _, ev := range f.events {
		if ev.IncidentID == id && ev.EventType == et {
			out = append(out, ev)
		}
	}
	return out
}

// fakeOncallLookup stands in for the on-call client.
type fakeOncallLookup struct {
	now *models.OncallNow
	err error
}

func (f *fakeOncallLookup) CurrentOncall(context.Context, string) (*models.OncallNow, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.now == nil {
		return nil, errors.New("no on-call configured")
	}
	return f.now, nil
}

// fakeNotifier records dispatched notifications on a buffered channel so
// tests can wait for the fire-and-forget goroutine.
type fakeNotifier struct {
	requests chan models.NotifyRequest
	err      error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{requests: make(chan models.NotifyRequest, 16)}
}

func (f *fakeNotifier) Notify(_ context.Context, req models.NotifyRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests <- req
	return nil
}

func (f *fakeNotifier) wait(timeout time.Duration) (models.NotifyRequest, bool) {
	select {
	case req := <-f.requests:
		return req, true
	case <-time.After(timeout):
		return models.NotifyRequest{}, false
	}
}
