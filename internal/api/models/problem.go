// Package models holds the request and response bodies of the console API.
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

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://opsconsole.openrag.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation     = problemBase + "validation-error"
	ProblemTypeUnauthorized   = problemBase + "unauthorized"
	ProblemTypeForbidden      = problemBase + "forbidden"
	ProblemTypeNotFound       = problemBase + "not-found"
	ProblemTypeConflict       = problemBase + "conflict"
	ProblemTypeUnsupported    = problemBase + "unsupported-media-type"
	ProblemTypeUnprocessable  = problemBase + "unprocessable"
	ProblemTypeTooManyRequest = problemBase + "too-many-requests"
	ProblemTypeInternal       = problemBase + "internal-error"
	ProblemTypeBadGateway     = problemBase + "bad-gateway"
	ProblemTypeUnavailable    = problemBase + "service-unavailable"
	ProblemTypeUpstream       = problemBase + "upstream-rejected"
)

var problemKinds = map[int]struct{ typ, title string }{
	http.StatusBadRequest:           {ProblemTypeValidation, "Validation error"},
	http.StatusUnauthorized:         {ProblemTypeUnauthorized, "Unauthorized"},
	http.StatusForbidden:            {ProblemTypeForbidden, "Forbidden"},
	http.StatusNotFound:             {ProblemTypeNotFound, "Not found"},
	http.StatusConflict:             {ProblemTypeConflict, "Conflict"},
	http.StatusUnsupportedMediaType: {ProblemTypeUnsupported, "Unsupported media type"},
	http.StatusUnprocessableEntity:  {ProblemTypeUnprocessable, "Unprocessable entity"},
	http.StatusTooManyRequests:      {ProblemTypeTooManyRequest, "Too many requests"},
	http.StatusInternalServerError:  {ProblemTypeInternal, "Internal server error"},
	http.StatusBadGateway:           {ProblemTypeBadGateway, "Bad gateway"},
	http.StatusServiceUnavailable:   {ProblemTypeUnavailable, "Service unavailable"},
}

// NewProblem creates a Problem with an explicit type.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// ForStatus creates a Problem for status with the matching type and title.
// Statuses without a dedicated type are reported as upstream rejections.
func ForStatus(status int, traceID, detail string) *Problem {
	kind, ok := problemKinds[status]
	if !ok {
		kind.typ, kind.title = ProblemTypeUpstream, http.StatusText(status)
	}
	p := NewProblem(kind.typ, kind.title, status, traceID)
	p.Detail = detail
	return p
}

// WithDetail sets the occurrence-specific explanation.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return ForStatus(http.StatusBadRequest, traceID, detail).WithErrors(errors)
}

// NewUnauthorized creates a 401 problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return ForStatus(http.StatusUnauthorized, traceID, detail)
}

// NewForbidden creates a 403 problem.
func NewForbidden(traceID, detail string) *Problem {
	return ForStatus(http.StatusForbidden, traceID, detail)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return ForStatus(http.StatusNotFound, traceID, detail)
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return ForStatus(http.StatusUnsupportedMediaType, traceID, detail)
}

// NewUnprocessable creates a 422 problem.
func NewUnprocessable(traceID, detail string, errors []FieldError) *Problem {
	return ForStatus(http.StatusUnprocessableEntity, traceID, detail).WithErrors(errors)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return ForStatus(http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return ForStatus(http.StatusInternalServerError, traceID, detail)
}

// NewBadGateway creates a 502 problem, used when the backend could not be reached.
func NewBadGateway(traceID, detail string) *Problem {
	return ForStatus(http.StatusBadGateway, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return ForStatus(http.StatusServiceUnavailable, traceID, detail)
}
