package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/services/channels"
)

type stubHandler struct {
	err   error
	panic bool
	calls int
}

func (h *stubHandler) Deliver(_ context.Context, _ models.NotifyRequest) error {
	h.calls++
	if h.panic {
		panic("handler exploded")
	}
	return h.err
}

func newNotificationService(capacity int, handler channels.Handler) *NotificationService {
	m := metrics.NewNotifyMetrics(prometheus.NewRegistry())
	return NewNotificationService(capacity, map[models.Channel]channels.Handler{
		models.ChannelMock:  handler,
		models.ChannelEmail: handler,
	}, m, testLogger())
}

func notifyRequest() *models.NotifyRequest {
	return &models.NotifyRequest{
		IncidentID: "inc-1",
		Channel:    "mock",
		Recipient:  "alice@example.com",
		Message:    "incident assigned to you",
	}
}

func TestNotifyRecordsSent(t *testing.T) {
	handler := &stubHandler{}
	svc := newNotificationService(10, handler)

	n, err := svc.Notify(context.Background(), notifyRequest())
	require.NoError(t, err)

	assert.Equal(t, models.NotificationSent, n.Status)
	assert.Equal(t, 1, handler.calls)
	assert.NotEmpty(t, n.ID)

	got, err := svc.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
}

func TestNotifyFailedDeliveryIsRecordedNotReturned(t *testing.T) {
	handler := &stubHandler{err: errors.New("smtp: connection refused")}
	svc := newNotificationService(10, handler)

	n, err := svc.Notify(context.Background(), notifyRequest())
	require.NoError(t, err, "delivery failure must not fail the request")
	assert.Equal(t, models.NotificationFailed, n.Status)
}

func TestNotifyHandlerPanicIsContained(t *testing.T) {
	handler := &stubHandler{panic: true}
	svc := newNotificationService(10, handler)

	n, err := svc.Notify(context.Background(), notifyRequest())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, n.Status)
}

func TestNotifyCasefoldsChannel(t *testing.T) {
	svc := newNotificationService(10, &stubHandler{})

	req := notifyRequest()
	req.Channel = "  EMAIL "
	n, err := svc.Notify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, n.Channel)
}

func TestNotifyValidation(t *testing.T) {
	svc := newNotificationService(10, &stubHandler{})

	tests := []struct {
		name   string
		mutate func(*models.NotifyRequest)
	}{
		{"missing incident_id", func(r *models.NotifyRequest) { r.IncidentID = "" }},
		{"unknown channel", func(r *models.NotifyRequest) { r.Channel = "pager" }},
		{"missing recipient", func(r *models.NotifyRequest) { r.Recipient = "  " }},
		{"missing message", func(r *models.NotifyRequest) { r.Message = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := notifyRequest()
			tt.mutate(req)
			_, err := svc.Notify(context.Background(), req)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestNotificationLogEvictionDropsIndexEntry(t *testing.T) {
	svc := newNotificationService(2, &stubHandler{})

	first, err := svc.Notify(context.Background(), notifyRequest())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.Notify(context.Background(), notifyRequest())
		require.NoError(t, err)
	}

	_, err = svc.Get(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
	assert.Equal(t, 2, svc.Stats(context.Background()).Total)
}

func TestGetNotificationBadID(t *testing.T) {
	svc := newNotificationService(10, &stubHandler{})

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrBadID)

	_, err = svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestListNotificationsFiltersAndPaginates(t *testing.T) {
	svc := newNotificationService(50, &stubHandler{})

	for i := 0; i < 5; i++ {
		req := notifyRequest()
		req.IncidentID = fmt.Sprintf("inc-%d", i%2)
		_, err := svc.Notify(context.Background(), req)
		require.NoError(t, err)
	}

	resp := svc.List(context.Background(), models.NotificationFilter{IncidentID: "inc-0"})
	assert.Equal(t, 3, resp.TotalCount)
	assert.Len(t, resp.Notifications, 3)

	resp = svc.List(context.Background(), models.NotificationFilter{Limit: 2, Offset: 4})
	assert.Equal(t, 5, resp.TotalCount)
	assert.Len(t, resp.Notifications, 1)

	resp = svc.List(context.Background(), models.NotificationFilter{Channel: "slack"})
	assert.Zero(t, resp.TotalCount)
}

func TestNotificationStats(t *testing.T) {
	ok := &stubHandler{}
	failing := &stubHandler{err: errors.New("boom")}
	m := metrics.NewNotifyMetrics(prometheus.NewRegistry())
	svc := NewNotificationService(10, map[models.Channel]channels.Handler{
		models.ChannelMock:  ok,
		models.ChannelEmail: failing,
	}, m, testLogger())

	req := notifyRequest()
	req.Severity = "high"
	_, err := svc.Notify(context.Background(), req)
	require.NoError(t, err)

	req = notifyRequest()
	req.Channel = "email"
	_, err = svc.Notify(context.Background(), req)
	require.NoError(t, err)

	stats := svc.Stats(context.Background())
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ByChannel["mock"])
	assert.Equal(t, 1, stats.ByChannel["email"])
	assert.Equal(t, 1, stats.BySeverity["high"])
	assert.Equal(t, 1, stats.BySeverity["unknown"])
}
