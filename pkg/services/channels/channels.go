// Package channels implements the notification delivery backends. Every
// channel satisfies the Handler capability; a nil Deliver error means the
// notification was sent.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagerd/pagerd/pkg/models"
)

// Handler delivers one notification request.
type Handler interface {
	Deliver(ctx context.Context, req models.NotifyRequest) error
}

// Mock logs the delivery and always succeeds.
type Mock struct {
	Logger *slog.Logger
}

func (m *Mock) Deliver(_ context.Context, req models.NotifyRequest) error {
	m.Logger.Info("mock notification delivered",
		slog.String("incident_id", req.IncidentID),
		slog.String("recipient", req.Recipient))
	return nil
}

// HTTPPost delivers by POSTing the request JSON to a configured endpoint.
// With no endpoint configured it degrades to mock behavior. Any non-2xx
// response, timeout or connection error fails the delivery.
type HTTPPost struct {
	Name     string
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

// NewHTTPPost creates an endpoint-backed channel handler.
func NewHTTPPost(name, endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPPost {
	return &HTTPPost{
		Name:     name,
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
		Logger:   logger,
	}
}

func (h *HTTPPost) Deliver(ctx context.Context, req models.NotifyRequest) error {
	if h.Endpoint == "" {
		h.Logger.Info("no endpoint configured, treating delivery as mock",
			slog.String("channel", h.Name),
			slog.String("incident_id", req.IncidentID))
		return nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s delivery failed: %w", h.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s endpoint returned status %d", h.Name, resp.StatusCode)
	}
	return nil
}

// Registry builds the channel handler table from the configured endpoints.
// Channels without an endpoint behave as mock.
func Registry(emailEndpoint, slackEndpoint, webhookURL string, timeout time.Duration, logger *slog.Logger) map[models.Channel]Handler {
	return map[models.Channel]Handler{
		models.ChannelMock:    &Mock{Logger: logger},
		models.ChannelEmail:   NewHTTPPost("email", emailEndpoint, timeout, logger),
		models.ChannelSlack:   NewHTTPPost("slack", slackEndpoint, timeout, logger),
		models.ChannelWebhook: NewHTTPPost("webhook", webhookURL, timeout, logger),
	}
}
