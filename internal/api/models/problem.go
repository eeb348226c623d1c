package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field. Field uses the
// JSON name, dotted for nested fields.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs, relative to the console API root.
const (
	ProblemTypeValidation           = "/problems/validation-error"
	ProblemTypeUnauthorized         = "/problems/unauthorized"
	ProblemTypeNotFound             = "/problems/not-found"
	ProblemTypeConflict             = "/problems/conflict"
	ProblemTypeUnsupportedMediaType = "/problems/unsupported-media-type"
	ProblemTypeTooManyRequests      = "/problems/too-many-requests"
	ProblemTypeInternal             = "/problems/internal-error"
	ProblemTypeBadGateway           = "/problems/engine-error"
	ProblemTypeUnavailable          = "/problems/service-unavailable"
)

var problemTitles = map[string]string{
	ProblemTypeValidation:           "Validation error",
	ProblemTypeUnauthorized:         "Unauthorized",
	ProblemTypeNotFound:             "Not found",
	ProblemTypeConflict:             "Conflict",
	ProblemTypeUnsupportedMediaType: "Unsupported media type",
	ProblemTypeTooManyRequests:      "Too many requests",
	ProblemTypeInternal:             "Internal server error",
	ProblemTypeBadGateway:           "Engine error",
	ProblemTypeUnavailable:          "Service unavailable",
}

func newProblem(problemType string, status int, traceID, detail string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   problemTitles[problemType],
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write sends the problem. The trace id doubles as the X-Request-Id header.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newProblem(ProblemTypeValidation, http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized creates a 401 problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnauthorized, http.StatusUnauthorized, traceID, detail)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return newProblem(ProblemTypeNotFound, http.StatusNotFound, traceID, detail)
}

// NewConflict creates a 409 problem.
func NewConflict(traceID, detail string) *Problem {
	return newProblem(ProblemTypeConflict, http.StatusConflict, traceID, detail)
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnsupportedMediaType, http.StatusUnsupportedMediaType, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newProblem(ProblemTypeTooManyRequests, http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return newProblem(ProblemTypeInternal, http.StatusInternalServerError, traceID, detail)
}

// NewBadGateway creates a 502 problem for a request the engine rejected.
func NewBadGateway(traceID, detail string) *Problem {
	return newProblem(ProblemTypeBadGateway, http.StatusBadGateway, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem, used when the engine health
// probe fails.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnavailable, http.StatusServiceUnavailable, traceID, detail)
}
