package health

import (
	"encoding/json"
	"time"

	"github.com/openrag/opsconsole/internal/probe"
)

// Cycle is one complete pass over the probe set. A zero ID means no cycle
// has been published yet and every status is pending. Cycles are immutable.
type Cycle struct {
	ID          uint64
	StartedAt   time.Time
	CompletedAt time.Time

	order    []string
	statuses map[string]probe.ServiceStatus
}

// Statuses returns the statuses in probe configuration order.
func (c Cycle) Statuses() []probe.ServiceStatus {
	out := make([]probe.ServiceStatus, 0, len(c.order))
	for _, name := range c.order {
		if st, ok := c.statuses[name]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Status returns the status for a probe name.
func (c Cycle) Status(name string) (probe.ServiceStatus, bool) {
	st, ok := c.statuses[name]
	return st, ok
}

// Count returns how many probes ended in the given state.
func (c Cycle) Count(state probe.State) int {
	n := 0
	for _, st := range c.statuses {
		if st.State == state {
			n++
		}
	}
	return n
}

// AllUnreachable reports whether every probe in a published cycle was unreachable.
func (c Cycle) AllUnreachable() bool {
	return c.ID != 0 && len(c.statuses) > 0 && c.Count(probe.StateUnreachable) == len(c.statuses)
}

// Overall summarizes the cycle as a single state: the worst of its statuses.
func (c Cycle) Overall() probe.State {
	if c.ID == 0 {
		return probe.StatePending
	}
	switch {
	case c.Count(probe.StateUnreachable) > 0:
		return probe.StateUnreachable
	case c.Count(probe.StateDegraded) > 0:
		return probe.StateDegraded
	default:
		return probe.StateHealthy
	}
}

type cycleJSON struct {
	ID          uint64                `json:"cycle_id"`
	Overall     probe.State           `json:"overall"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Services    []probe.ServiceStatus `json:"services"`
}

// MarshalJSON renders the cycle with its statuses in configuration order.
func (c Cycle) MarshalJSON() ([]byte, error) {
	out := cycleJSON{
		ID:       c.ID,
		Overall:  c.Overall(),
		Services: c.Statuses(),
	}
	if !c.StartedAt.IsZero() {
		out.StartedAt = &c.StartedAt
		out.CompletedAt = &c.CompletedAt
	}
	return json.Marshal(out)
}
