package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/session"
)

// SessionResolver turns a bearer token into a session. Forget drops whatever
// the resolver remembers about a token the backend has since rejected.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Context, error)
	Forget(token string)
}

// Auth resolves the bearer token into a session and attaches it to the
// request context. The token is never inspected locally; the backend decides
// whether it is valid. A handler answering 401 means the backend turned the
// token down after it was resolved, so the resolver is told to forget it.
func Auth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := session.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthorized(w, r, err.Error())
				return
			}

			sess, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeResolveFailure(w, r, err)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("enduser.id", sess.Principal.Username),
				attribute.String("enduser.role", string(sess.Principal.Role)),
			)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(session.WithContext(r.Context(), sess)))
			if rec.statusCode == http.StatusUnauthorized {
				resolver.Forget(token)
			}
		})
	}
}

// RequireRole rejects sessions that do not hold role. It must run after Auth.
func RequireRole(role session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if !sess.Active() {
				writeUnauthorized(w, r, session.ErrNoSession.Error())
				return
			}
			if !sess.HasRole(role) {
				problem := models.NewForbidden(GetRequestID(r.Context()), "Admin access required")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeResolveFailure maps a failed principal lookup: a backend 401/403 means
// the token is not accepted, anything else means the backend could not answer.
func writeResolveFailure(w http.ResponseWriter, r *http.Request, err error) {
	traceID := GetRequestID(r.Context())

	var problem *models.Problem
	switch code := backend.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		problem = models.NewUnauthorized(traceID, backend.Message(err, "invalid or expired session"))
	case errors.Is(err, session.ErrMissingToken):
		problem = models.NewUnauthorized(traceID, err.Error())
	default:
		problem = models.NewBadGateway(traceID, backend.Message(err, "could not verify session"))
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// writeUnauthorized is duplicated here rather than imported from response,
// which depends on this package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}
