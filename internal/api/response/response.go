// Package response provides utilities for HTTP response handling.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/byze/byze-console/internal/api/middleware"
	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/engine"
	"github.com/byze/byze-console/internal/gate"
	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/modelsync"
	"github.com/byze/byze-console/internal/store"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// FromError writes the problem matching err. Errors that are not part of
// the console's error taxonomy become a 500 without leaking their message.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var apiErr *engine.APIError
	switch {
	case errors.Is(err, gate.ErrServiceUnavailable):
		Error(w, r, models.NewServiceUnavailable(traceID, "the engine is not reachable"))
	case errors.Is(err, context.DeadlineExceeded):
		Error(w, r, models.NewServiceUnavailable(traceID, "the engine did not answer in time"))
	case errors.As(err, &apiErr):
		Error(w, r, models.NewBadGateway(traceID, apiErr.Error()))
	case errors.Is(err, modelsync.ErrUnknownModel),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, kvstore.ErrNotFound):
		Error(w, r, models.NewNotFound(traceID, err.Error()))
	case errors.Is(err, modelsync.ErrTooManyDownloads):
		Error(w, r, models.NewConflict(traceID, err.Error()))
	default:
		Error(w, r, models.NewInternalError(traceID, "an unexpected error occurred"))
	}
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadRequest(traceID, detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNotFound(traceID, detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewInternalError(traceID, detail))
}

// Created writes a 201 Created response with Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// Accepted writes a 202 Accepted response. The work it acknowledges
// continues in the engine.
func Accepted(w http.ResponseWriter, r *http.Request, data interface{}) {
	JSON(w, r, http.StatusAccepted, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
}
