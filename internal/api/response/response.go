// Package response writes console API replies.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/openrag/opsconsole/internal/admin"
	"github.com/openrag/opsconsole/internal/api/middleware"
	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/listing"
	"github.com/openrag/opsconsole/internal/session"
)

// JSON writes data as a JSON body with status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Problem writes p with the request path as its instance.
func Problem(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

// BadRequest writes a 400 problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	Problem(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errs))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// Error translates a component error into a problem. fallback is the detail
// used when the error carries no user-visible text of its own.
//
//   - no session: 401
//   - admin role missing: 403
//   - local validation: 400, 422 for a too-short password, 404 for an
//     account the backend does not list
//   - backend rejection: the backend's 4xx status and detail, 502 otherwise
//   - backend unreachable or circuit open: 502
func Error(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	traceID := middleware.GetRequestID(r.Context())

	var (
		ve *admin.ValidationError
		re *backend.RejectedError
		te *backend.TransportError
	)
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrMissingToken):
		Problem(w, r, models.NewUnauthorized(traceID, session.ErrNoSession.Error()))
	case errors.Is(err, admin.ErrForbidden):
		Problem(w, r, models.NewForbidden(traceID, "Admin access required"))
	case errors.As(err, &ve):
		detail := sentence(ve.Err.Error())
		var fields []models.FieldError
		if ve.Field != "" {
			fields = []models.FieldError{{Field: ve.Field, Message: ve.Err.Error(), Code: validationCode(ve.Err)}}
		}
		switch {
		case errors.Is(ve.Err, admin.ErrPasswordTooShort):
			Problem(w, r, models.NewUnprocessable(traceID, detail, fields))
		case errors.Is(ve.Err, admin.ErrNoEditInProgress):
			Problem(w, r, models.ForStatus(http.StatusConflict, traceID, detail))
		case errors.Is(ve.Err, admin.ErrUnknownAccount):
			Problem(w, r, models.NewNotFound(traceID, detail))
		default:
			Problem(w, r, models.NewBadRequest(traceID, detail, fields))
		}
	case errors.Is(err, listing.ErrInvalidStatus), errors.Is(err, listing.ErrInvalidPageSize), errors.Is(err, listing.ErrInvalidPage):
		Problem(w, r, models.NewBadRequest(traceID, err.Error(), nil))
	case errors.As(err, &re):
		// A backend fault is not the console's own: anything outside 4xx
		// is reported as a bad gateway.
		status := re.StatusCode
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		Problem(w, r, models.ForStatus(status, traceID, backend.Message(err, fallback)))
	case errors.As(err, &te):
		Problem(w, r, models.NewBadGateway(traceID, backend.Message(err, fallback)))
	default:
		Problem(w, r, models.NewInternalError(traceID, fallback))
	}
}

// sentence upper-cases the first letter of an error text.
func sentence(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, admin.ErrIDRequired), errors.Is(err, admin.ErrUsernameRequired), errors.Is(err, admin.ErrPasswordRequired):
		return "required"
	case errors.Is(err, admin.ErrPasswordTooShort):
		return "min_length"
	case errors.Is(err, admin.ErrInvalidRole):
		return "invalid_enum"
	case errors.Is(err, admin.ErrSelfDelete):
		return "self_delete"
	case errors.Is(err, admin.ErrUnknownAccount):
		return "not_found"
	}
	return ""
}
