package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openrag/opsconsole/internal/resilience"
)

// ErrMalformedResponse is returned when a 2xx response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed backend response")

// TransportError means no response was received: a network error, a timeout,
// or an open circuit breaker. These are safe to retry manually.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError means the backend answered with a non-success status.
// Detail carries the backend's own explanation when it sent one.
type RejectedError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: rejected with %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: rejected with %d", e.Op, e.StatusCode)
}

// Retryable reports whether err is a transport failure. Rejections are never
// retryable; repeating a rejected create or delete risks a duplicate mutation.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Message returns the text shown to the operator for err: the backend's
// detail verbatim when present, otherwise fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var re *RejectedError
	if errors.As(err, &re) && re.Detail != "" {
		return re.Detail
	}
	return fallback
}

// StatusCode returns the backend status for a rejection, or 0.
func StatusCode(err error) int {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func isCircuitOpen(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen)
}

// errorBody covers FastAPI-style {"detail": "..."} and validation arrays
// {"detail": [{"msg": "..."}]}, plus problem documents that also use "detail".
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func parseDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func newRejectedError(op string, resp *http.Response, body []byte) *RejectedError {
	return &RejectedError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(body),
	}
}
