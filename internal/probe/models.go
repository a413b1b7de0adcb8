// Package probe issues bounded health checks against backing services and
// classifies each outcome into a closed status enum.
package probe

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Probe configuration errors.
var (
	ErrInvalidProbe   = errors.New("invalid probe")
	ErrDuplicateProbe = errors.New("duplicate probe name")
)

// DetailUnreachable is the detail attached to probes that failed without a response.
const DetailUnreachable = "unreachable"

// State is the normalized status of a monitored service.
type State string

const (
	StatePending     State = "pending"
	StateHealthy     State = "healthy"
	StateDegraded    State = "degraded"
	StateUnreachable State = "unreachable"
)

// Terminal reports whether the state is the settled outcome of a probe.
func (s State) Terminal() bool {
	return s == StateHealthy || s == StateDegraded || s == StateUnreachable
}

// ServiceProbe describes one monitored target.
type ServiceProbe struct {
	// Name identifies the probe and must be unique within a probe set.
	Name string

	// Target is the absolute URL requested with GET.
	Target string

	// Timeout bounds the whole probe, including reading the response body.
	Timeout time.Duration
}

// Validate checks that the probe can be dispatched.
func (p ServiceProbe) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProbe)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: %s: timeout must be positive", ErrInvalidProbe, p.Name)
	}
	u, err := url.Parse(p.Target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s: target %q is not an absolute URL", ErrInvalidProbe, p.Name, p.Target)
	}
	return nil
}

// ValidateSet validates every probe and rejects duplicate names.
func ValidateSet(probes []ServiceProbe) error {
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateProbe, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// ServiceStatus is the outcome of probing one service during a cycle.
// Statuses are replaced wholesale by the next cycle, never edited.
type ServiceStatus struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// Pending returns the placeholder status for a probe that has not settled.
func Pending(name string) ServiceStatus {
	return ServiceStatus{Name: name, State: StatePending}
}

// Unreachable returns a status for a probe that got no usable response.
func Unreachable(name, detail string) ServiceStatus {
	if detail == "" {
		detail = DetailUnreachable
	}
	return ServiceStatus{Name: name, State: StateUnreachable, Detail: detail}
}
