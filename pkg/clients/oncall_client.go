package clients

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pagerd/pagerd/pkg/models"
)

// OncallClient talks to the on-call service.
type OncallClient struct {
	*client
}

// NewOncallClient creates a client for the given base URL.
func NewOncallClient(baseURL string, timeout time.Duration, logger *slog.Logger) *OncallClient {
	return &OncallClient{client: newClient("oncall", baseURL, timeout, logger)}
}

// CurrentOncall resolves the current on-call pair for a team.
func (c *OncallClient) CurrentOncall(ctx context.Context, team string) (*models.OncallNow, error) {
	var now models.OncallNow
	path := "/api/v1/oncall/current?team=" + url.QueryEscape(team)
	if err := c.do(ctx, http.MethodGet, path, nil, &now, http.StatusOK); err != nil {
		return nil, err
	}
	return &now, nil
}
