package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/ring"
	"github.com/pagerd/pagerd/pkg/services/channels"
)

// NotificationService dispatches notify requests by channel and keeps a
// bounded in-memory delivery log indexed by id. Handler panics never reach
// the caller; they surface as a failed entry.
type NotificationService struct {
	mu       sync.Mutex
	log      *ring.Buffer[models.Notification]
	index    map[string]models.Notification
	handlers map[models.Channel]channels.Handler
	metrics  *metrics.NotifyMetrics
	logger   *slog.Logger
	clock    func() time.Time
}

// NewNotificationService creates a notification service with the given log
// capacity and channel handlers.
func NewNotificationService(capacity int, handlers map[models.Channel]channels.Handler, m *metrics.NotifyMetrics, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		log:      ring.New[models.Notification](capacity),
		index:    make(map[string]models.Notification),
		handlers: handlers,
		metrics:  m,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *NotificationService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Notify validates the request, dispatches it on the requested channel and
// records the outcome. The stored entry carries status failed when the
// handler errors or panics; the error itself never propagates.
func (s *NotificationService) Notify(ctx context.Context, req *models.NotifyRequest) (*models.Notification, error) {
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	req.Recipient = strings.TrimSpace(req.Recipient)

	if strings.TrimSpace(req.IncidentID) == "" {
		return nil, NewValidationError("incident_id", "must not be empty")
	}
	channel := models.Channel(req.Channel)
	if !channel.Valid() {
		return nil, NewValidationError("channel", "must be one of: mock, email, slack, webhook")
	}
	if req.Recipient == "" {
		return nil, NewValidationError("recipient", "must not be empty")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, NewValidationError("message", "must not be empty")
	}

	status := models.NotificationSent
	if err := s.deliver(ctx, channel, *req); err != nil {
		status = models.NotificationFailed
		s.logger.Warn("notification delivery failed",
			slog.String("channel", req.Channel),
			slog.String("incident_id", req.IncidentID),
			slog.String("error", err.Error()))
	}

	notification := models.Notification{
		ID:         uuid.NewString(),
		IncidentID: req.IncidentID,
		Channel:    channel,
		Recipient:  req.Recipient,
		Message:    req.Message,
		Severity:   req.Severity,
		Metadata:   req.Metadata,
		Status:     status,
		CreatedAt:  s.clock(),
	}

	s.mu.Lock()
	if evicted, ok := s.log.Append(notification); ok {
		delete(s.index, evicted.ID)
	}
	s.index[notification.ID] = notification
	s.mu.Unlock()

	s.metrics.Sent.WithLabelValues(req.Channel, string(status)).Inc()
	return &notification, nil
}

// deliver runs the channel handler, converting panics into errors.
func (s *NotificationService) deliver(ctx context.Context, channel models.Channel, req models.NotifyRequest) (err error) {
	handler, ok := s.handlers[channel]
	if !ok {
		return NewValidationError("channel", "no handler registered for "+string(channel))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel handler panicked: %v", r)
		}
	}()
	return handler.Deliver(ctx, req)
}

// Get returns one logged notification by id.
func (s *NotificationService) Get(_ context.Context, id string) (*models.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBadID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return &n, nil
}

// List returns logged notifications matching the filter, newest first.
func (s *NotificationService) List(_ context.Context, filter models.NotificationFilter) *models.NotificationListResponse {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	s.mu.Lock()
	all := s.log.Items()
	s.mu.Unlock()

	matched := make([]models.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		n := all[i]
		if filter.Channel != "" && string(n.Channel) != filter.Channel {
			continue
		}
		if filter.Status != "" && string(n.Status) != filter.Status {
			continue
		}
		if filter.IncidentID != "" && n.IncidentID != filter.IncidentID {
			continue
		}
		if filter.Recipient != "" && n.Recipient != filter.Recipient {
			continue
		}
		matched = append(matched, n)
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}

	return &models.NotificationListResponse{
		Notifications: matched[start:end],
		TotalCount:    total,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}
}

// Stats summarizes the notification log. Entries without a severity count
// under "unknown".
func (s *NotificationService) Stats(_ context.Context) *models.NotificationStats {
	s.mu.Lock()
	all := s.log.Items()
	s.mu.Unlock()

	stats := &models.NotificationStats{
		ByChannel:  map[string]int{},
		BySeverity: map[string]int{},
	}
	for _, n := range all {
		stats.Total++
		if n.Status == models.NotificationSent {
			stats.Sent++
		} else {
			stats.Failed++
		}
		stats.ByChannel[string(n.Channel)]++
		severity := n.Severity
		if severity == "" {
			severity = "unknown"
		}
		stats.BySeverity[severity]++
	}
	return stats
}
