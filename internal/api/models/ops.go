package models

import "time"

// HealthStatus is the console's own liveness verdict.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Health is the body of the liveness and readiness endpoints.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    time.Time      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports the latest health cycle alongside the state of every
// circuit breaker the console holds.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      time.Time        `json:"time"`
	Cycle     any              `json:"cycle"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// UpstreamStatus is one circuit breaker.
type UpstreamStatus struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *time.Time   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time   `json:"lastFailureAt,omitempty"`
	LastError           string       `json:"lastError,omitempty"`
}
