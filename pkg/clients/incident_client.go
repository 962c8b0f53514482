package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagerd/pagerd/pkg/models"
)

// IncidentClient talks to the incident management service.
type IncidentClient struct {
	*client
}

// NewIncidentClient creates a client for the given base URL.
func NewIncidentClient(baseURL string, timeout time.Duration, logger *slog.Logger) *IncidentClient {
	return &IncidentClient{client: newClient("incident-management", baseURL, timeout, logger)}
}

// CreateIncident creates an incident and returns the stored record.
func (c *IncidentClient) CreateIncident(ctx context.Context, req models.CreateIncidentRequest) (*models.Incident, error) {
	var inc models.Incident
	if err := c.do(ctx, http.MethodPost, "/api/v1/incidents", req, &inc, http.StatusCreated); err != nil {
		return nil, err
	}
	return &inc, nil
}
