package channels

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerd/pagerd/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRequest() models.NotifyRequest {
	return models.NotifyRequest{
		IncidentID: "inc-1",
		Channel:    "email",
		Recipient:  "alice@example.com",
		Message:    "incident assigned to you",
	}
}

func TestHTTPPostDelivers(t *testing.T) {
	var got models.NotifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewHTTPPost("email", srv.URL, time.Second, testLogger())
	require.NoError(t, h.Deliver(context.Background(), sampleRequest()))
	assert.Equal(t, "inc-1", got.IncidentID)
	assert.Equal(t, "alice@example.com", got.Recipient)
}

func TestHTTPPostNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHTTPPost("slack", srv.URL, time.Second, testLogger())
	err := h.Deliver(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPPostConnectionErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	h := NewHTTPPost("webhook", srv.URL, time.Second, testLogger())
	assert.Error(t, h.Deliver(context.Background(), sampleRequest()))
}

func TestHTTPPostWithoutEndpointActsAsMock(t *testing.T) {
	h := NewHTTPPost("email", "", time.Second, testLogger())
	assert.NoError(t, h.Deliver(context.Background(), sampleRequest()))
}

func TestRegistryCoversAllChannels(t *testing.T) {
	reg := Registry("", "", "", time.Second, testLogger())
	for _, c := range []models.Channel{models.ChannelMock, models.ChannelEmail, models.ChannelSlack, models.ChannelWebhook} {
		assert.Contains(t, reg, c)
	}
}
