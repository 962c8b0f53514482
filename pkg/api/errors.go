// Package api implements the HTTP surface of each service binary on gin:
// routing, middleware, error mapping and the uniform health endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagerd/pagerd/pkg/requestid"
	"github.com/pagerd/pagerd/pkg/services"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
}

// respondError maps service-layer errors to HTTP responses. Validation
// errors are expected traffic and not logged as errors.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	detail := "internal server error"

	var (
		validErr    *services.ValidationError
		conflictErr *services.ConflictError
	)
	switch {
	case errors.As(err, &validErr):
		status = http.StatusUnprocessableEntity
		detail = validErr.Error()
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
		detail = conflictErr.Error()
	case errors.Is(err, services.ErrBadID):
		status = http.StatusBadRequest
		detail = err.Error()
	case errors.Is(err, services.ErrNoPrimary):
		status = http.StatusBadRequest
		detail = err.Error()
	case errors.Is(err, services.ErrAlertNotFound),
		errors.Is(err, services.ErrIncidentNotFound),
		errors.Is(err, services.ErrScheduleNotFound),
		errors.Is(err, services.ErrOverrideNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		status = http.StatusNotFound
		detail = err.Error()
	case errors.Is(err, services.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		detail = "persistence unavailable"
		slog.Error("persistence error", "error", err)
	default:
		slog.Error("unexpected service error", "error", err)
	}

	c.AbortWithStatusJSON(status, errorBody{
		Detail:    detail,
		RequestID: requestid.FromContext(c.Request.Context()),
	})
}

// respondBadJSON rejects an unparseable request body.
func respondBadJSON(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorBody{
		Detail:    "invalid request body: " + err.Error(),
		RequestID: requestid.FromContext(c.Request.Context()),
	})
}
