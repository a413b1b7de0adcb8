package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openrag/opsconsole/internal/api/middleware"
	"github.com/openrag/opsconsole/internal/session"
)

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	h := middleware.RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/services/refresh", http.NoBody)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	}

	rec := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code, "other clients keep their own budget")
}

func TestRateLimitByPrincipal_SharesBudgetAcrossIPs(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	h := middleware.RateLimitByPrincipal(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	call := func(ip, username string) int {
		ctx := session.WithContext(context.Background(), session.Context{
			Token:     "tok-" + username,
			Principal: session.Principal{Username: username, Role: session.RoleAdmin},
		})
		req := httptest.NewRequest(http.MethodDelete, "/v1/users/u2", http.NoBody).WithContext(ctx)
		req.RemoteAddr = ip + ":1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.1.0.1", "alice"))
	assert.Equal(t, http.StatusOK, call("10.1.0.2", "alice"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.1.0.3", "alice"))
	assert.Equal(t, http.StatusOK, call("10.1.0.3", "bob"))
}
