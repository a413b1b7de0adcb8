package probe

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// maxBodyBytes bounds how much of a health response is read for degraded markers.
const maxBodyBytes = 64 << 10

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RunnerConfig holds configuration for the probe runner.
type RunnerConfig struct {
	// HTTPClient is the transport used for probes. Probe deadlines come from
	// each probe's Timeout, so the default client sets no timeout of its own.
	HTTPClient HTTPDoer

	Logger zerolog.Logger
}

// Runner issues single bounded probes. It is safe for concurrent use.
type Runner struct {
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewRunner creates a probe runner.
func NewRunner(cfg RunnerConfig) *Runner {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Runner{
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Probe checks one target and always returns a terminal status within
// p.Timeout, however the target behaves. A result produced after the deadline
// is discarded.
func (r *Runner) Probe(ctx context.Context, p ServiceProbe) ServiceStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	done := make(chan ServiceStatus, 1)
	go func() {
		done <- r.check(ctx, p)
	}()

	var status ServiceStatus
	select {
	case status = <-done:
	case <-ctx.Done():
		status = Unreachable(p.Name, DetailUnreachable)
	}

	status.Name = p.Name
	status.CheckedAt = time.Now().UTC()
	status.LatencyMs = time.Since(start).Milliseconds()

	r.logger.Debug().
		Str("probe", p.Name).
		Str("target", p.Target).
		Str("state", string(status.State)).
		Str("detail", status.Detail).
		Int64("latency_ms", status.LatencyMs).
		Msg("probe settled")

	return status
}

func (r *Runner) check(ctx context.Context, p ServiceProbe) ServiceStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Target, http.NoBody)
	if err != nil {
		return Unreachable(p.Name, DetailUnreachable)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Unreachable(p.Name, DetailUnreachable)
	}
	defer resp.Body.Close()

	code := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Unreachable(p.Name, code)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil && ctx.Err() != nil {
		return Unreachable(p.Name, DetailUnreachable)
	}

	if hasDegradedMarker(body) {
		return ServiceStatus{Name: p.Name, State: StateDegraded, Detail: code}
	}
	return ServiceStatus{Name: p.Name, State: StateHealthy, Detail: code}
}
