package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagerd/pagerd/pkg/models"
)

// NotifyClient talks to the notification service.
type NotifyClient struct {
	*client
}

// NewNotifyClient creates a client for the given base URL.
func NewNotifyClient(baseURL string, timeout time.Duration, logger *slog.Logger) *NotifyClient {
	return &NotifyClient{client: newClient("notification", baseURL, timeout, logger)}
}

// Notify dispatches a notification fire-and-forget; the logged entry's
// delivery status is the notification service's concern.
func (c *NotifyClient) Notify(ctx context.Context, req models.NotifyRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notify", req, nil, http.StatusOK)
}
