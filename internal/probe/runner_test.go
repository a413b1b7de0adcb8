package probe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/probe"
)

func newRunner() *probe.Runner {
	return probe.NewRunner(probe.RunnerConfig{Logger: zerolog.Nop()})
}

func TestRunner_Probe(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantState  probe.State
		wantDetail string
	}{
		{
			name:       "plain 200",
			status:     http.StatusOK,
			body:       "healthz check passed",
			wantState:  probe.StateHealthy,
			wantDetail: "200",
		},
		{
			name:       "healthy json",
			status:     http.StatusOK,
			body:       `{"status":"healthy","services":{"orchestrator":"healthy"}}`,
			wantState:  probe.StateHealthy,
			wantDetail: "200",
		},
		{
			name:       "degraded status marker",
			status:     http.StatusOK,
			body:       `{"status":"degraded"}`,
			wantState:  probe.StateDegraded,
			wantDetail: "200",
		},
		{
			name:       "unhealthy member service",
			status:     http.StatusOK,
			body:       `{"status":"healthy","services":{"orchestrator":"unreachable"}}`,
			wantState:  probe.StateDegraded,
			wantDetail: "200",
		},
		{
			name:       "member service object",
			status:     http.StatusOK,
			body:       `{"services":{"vector":{"status":"yellow"}}}`,
			wantState:  probe.StateDegraded,
			wantDetail: "200",
		},
		{
			name:       "no content",
			status:     http.StatusNoContent,
			wantState:  probe.StateHealthy,
			wantDetail: "204",
		},
		{
			name:       "server error",
			status:     http.StatusServiceUnavailable,
			body:       `{"status":"ok"}`,
			wantState:  probe.StateUnreachable,
			wantDetail: "503",
		},
		{
			name:       "not found",
			status:     http.StatusNotFound,
			wantState:  probe.StateUnreachable,
			wantDetail: "404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			status := newRunner().Probe(context.Background(), probe.ServiceProbe{
				Name:    "api",
				Target:  server.URL,
				Timeout: time.Second,
			})

			assert.Equal(t, "api", status.Name)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantDetail, status.Detail)
			assert.False(t, status.CheckedAt.IsZero())
		})
	}
}

func TestRunner_ProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	status := newRunner().Probe(context.Background(), probe.ServiceProbe{
		Name:    "vector",
		Target:  server.URL,
		Timeout: 100 * time.Millisecond,
	})

	assert.Equal(t, probe.StateUnreachable, status.State)
	assert.Equal(t, probe.DetailUnreachable, status.Detail)
	assert.Less(t, time.Since(start), time.Second)
}

// hangingDoer ignores cancellation to prove the deadline does not depend on
// the transport honoring the context.
type hangingDoer struct {
	release chan struct{}
}

func (d *hangingDoer) Do(*http.Request) (*http.Response, error) {
	<-d.release
	return nil, errors.New("released")
}

func TestRunner_DeadlineIndependentOfTransport(t *testing.T) {
	doer := &hangingDoer{release: make(chan struct{})}
	defer close(doer.release)

	runner := probe.NewRunner(probe.RunnerConfig{HTTPClient: doer, Logger: zerolog.Nop()})

	start := time.Now()
	status := runner.Probe(context.Background(), probe.ServiceProbe{
		Name:    "storage",
		Target:  "http://storage.invalid/health",
		Timeout: 50 * time.Millisecond,
	})

	assert.Equal(t, probe.StateUnreachable, status.State)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunner_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	status := newRunner().Probe(context.Background(), probe.ServiceProbe{
		Name:    "llm",
		Target:  target,
		Timeout: time.Second,
	})

	assert.Equal(t, probe.StateUnreachable, status.State)
	assert.Equal(t, "unreachable", status.Detail)
}

func TestServiceProbe_Validate(t *testing.T) {
	valid := probe.ServiceProbe{Name: "api", Target: "http://localhost:8000/health", Timeout: time.Second}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		probe probe.ServiceProbe
	}{
		{"empty name", probe.ServiceProbe{Target: valid.Target, Timeout: time.Second}},
		{"relative target", probe.ServiceProbe{Name: "api", Target: "/health", Timeout: time.Second}},
		{"zero timeout", probe.ServiceProbe{Name: "api", Target: valid.Target}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.probe.Validate(), probe.ErrInvalidProbe)
		})
	}
}

func TestValidateSet_RejectsDuplicates(t *testing.T) {
	p := probe.ServiceProbe{Name: "api", Target: "http://localhost:8000/health", Timeout: time.Second}

	require.NoError(t, probe.ValidateSet([]probe.ServiceProbe{p}))
	assert.ErrorIs(t, probe.ValidateSet([]probe.ServiceProbe{p, p}), probe.ErrDuplicateProbe)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw   string
		want  probe.State
		known bool
	}{
		{"ok", probe.StateHealthy, true},
		{"Green", probe.StateHealthy, true},
		{" healthy ", probe.StateHealthy, true},
		{"yellow", probe.StateDegraded, true},
		{"degraded", probe.StateDegraded, true},
		{"red", probe.StateUnreachable, true},
		{"unhealthy", probe.StateUnreachable, true},
		{"", "", false},
		{"mystery", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := probe.Normalize(tt.raw)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, probe.StatePending.Terminal())
	assert.True(t, probe.StateHealthy.Terminal())
	assert.True(t, probe.StateDegraded.Terminal())
	assert.True(t, probe.StateUnreachable.Terminal())
}
