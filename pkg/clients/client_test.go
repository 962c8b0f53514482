package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerd/pagerd/pkg/models"
	"github.com/pagerd/pagerd/pkg/requestid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"team":"platform","primary":{"name":"Alice","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	c := NewOncallClient(srv.URL, time.Second, testLogger())
	now, err := c.CurrentOncall(context.Background(), "platform")
	require.NoError(t, err)
	assert.Equal(t, "Alice", now.Primary.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOncallClient(srv.URL, time.Second, testLogger())
	_, err := c.CurrentOncall(context.Background(), "platform")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func Test4xxIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"no such team"}`))
	}))
	defer srv.Close()

	c := NewOncallClient(srv.URL, time.Second, testLogger())
	_, err := c.CurrentOncall(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestRequestIDPropagated(t *testing.T) {
	var gotID, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(requestid.Header)
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := requestid.WithContext(context.Background(), "req-123")
	c := NewOncallClient(srv.URL, time.Second, testLogger())
	_, err := c.CurrentOncall(ctx, "platform")
	require.NoError(t, err)
	assert.Equal(t, "req-123", gotID)
	assert.Contains(t, gotAgent, "pagerd/")
}

func TestCreateIncidentPostsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/incidents", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"inc-1","title":"disk full","status":"open"}`))
	}))
	defer srv.Close()

	c := NewIncidentClient(srv.URL, time.Second, testLogger())
	inc, err := c.CreateIncident(context.Background(), models.CreateIncidentRequest{
		Title: "disk full", Service: "db", Severity: models.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, "inc-1", inc.ID)
}

func TestNotifyExpects200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notify", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"sent"}`))
	}))
	defer srv.Close()

	c := NewNotifyClient(srv.URL, time.Second, testLogger())
	err := c.Notify(context.Background(), models.NotifyRequest{
		IncidentID: "inc-1", Channel: "mock", Recipient: "a@b.c", Message: "m",
	})
	assert.NoError(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOncallClient(srv.URL, time.Second, testLogger())
	for i := 0; i < 3; i++ {
		_, err := c.CurrentOncall(context.Background(), "platform")
		require.Error(t, err)
	}
	// Five consecutive failures tripped the breaker; later attempts fail
	// without reaching the server.
	before := calls.Load()
	_, err := c.CurrentOncall(context.Background(), "platform")
	require.Error(t, err)
	assert.Equal(t, before, calls.Load())
}
