// Package health runs health cycles over a fixed probe set and publishes the
// latest complete cycle. Probes within a cycle run concurrently and one slow
// or failing probe never affects the others.
package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/probe"
)

// Prober checks a single service. Implementations must return a terminal
// status within the probe's timeout.
type Prober interface {
	Probe(ctx context.Context, p probe.ServiceProbe) probe.ServiceStatus
}

// EventType identifies a monitor event.
type EventType string

const (
	EventCycleStarted   EventType = "cycle_started"
	EventProbeSettled   EventType = "probe_settled"
	EventCycleCompleted EventType = "cycle_completed"
)

// Event is emitted to subscribers as a cycle progresses.
type Event struct {
	Type    EventType            `json:"type"`
	CycleID uint64               `json:"cycle_id"`
	Status  *probe.ServiceStatus `json:"status,omitempty"`
	Cycle   *Cycle               `json:"cycle,omitempty"`
}

// Config holds configuration for the monitor.
type Config struct {
	Probes  []probe.ServiceProbe
	Prober  Prober
	Logger  zerolog.Logger
	Metrics *Metrics

	// Interval is the pause between scheduled cycles. Default: 30 seconds
	Interval time.Duration

	// MaxInterval caps the pause while every probe is unreachable.
	// Default: 5 minutes
	MaxInterval time.Duration
}

// Monitor owns the probe set and the latest published cycle.
type Monitor struct {
	probes      []probe.ServiceProbe
	prober      Prober
	logger      zerolog.Logger
	metrics     *Metrics
	interval    time.Duration
	maxInterval time.Duration

	nextID atomic.Uint64

	mu     sync.RWMutex
	latest *Cycle

	subMu   sync.RWMutex
	subs    map[uint64]chan Event
	nextSub uint64
}

// NewMonitor validates the probe set and creates a monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Prober == nil {
		return nil, fmt.Errorf("health: prober is required")
	}
	if len(cfg.Probes) == 0 {
		return nil, fmt.Errorf("health: %w: empty probe set", probe.ErrInvalidProbe)
	}
	if err := probe.ValidateSet(cfg.Probes); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = 5 * time.Minute
		if cfg.MaxInterval < cfg.Interval {
			cfg.MaxInterval = cfg.Interval
		}
	}

	probes := make([]probe.ServiceProbe, len(cfg.Probes))
	copy(probes, cfg.Probes)

	return &Monitor{
		probes:      probes,
		prober:      cfg.Prober,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		interval:    cfg.Interval,
		maxInterval: cfg.MaxInterval,
		subs:        make(map[uint64]chan Event),
	}, nil
}

// RunCycle probes every service concurrently and waits for all of them to
// settle. Each settled probe is emitted as it arrives; the cycle itself is
// published only once complete, and only if no newer cycle was published in
// the meantime. The returned cycle is the one this call produced.
func (m *Monitor) RunCycle(ctx context.Context) Cycle {
	id := m.nextID.Add(1)
	started := time.Now().UTC()

	m.emit(Event{Type: EventCycleStarted, CycleID: id})

	results := make(chan probe.ServiceStatus, len(m.probes))
	var wg sync.WaitGroup
	for _, p := range m.probes {
		wg.Add(1)
		go func(p probe.ServiceProbe) {
			defer wg.Done()
			status := m.probeOne(ctx, p)
			m.metrics.RecordProbe(ctx, status)
			m.emit(Event{Type: EventProbeSettled, CycleID: id, Status: &status})
			results <- status
		}(p)
	}
	wg.Wait()
	close(results)

	statuses := make(map[string]probe.ServiceStatus, len(m.probes))
	for status := range results {
		statuses[status.Name] = status
	}

	cycle := Cycle{
		ID:          id,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		order:       m.names(),
		statuses:    statuses,
	}

	published := m.publish(cycle)
	m.metrics.RecordCycle(ctx, cycle.CompletedAt.Sub(cycle.StartedAt), published)

	m.logger.Info().
		Uint64("cycle_id", id).
		Bool("published", published).
		Int("unreachable", cycle.Count(probe.StateUnreachable)).
		Int("degraded", cycle.Count(probe.StateDegraded)).
		Dur("duration", cycle.CompletedAt.Sub(cycle.StartedAt)).
		Msg("health cycle completed")

	return cycle
}

// probeOne runs a probe and pins the result to the probe's own name.
// A panicking prober yields Unreachable for that probe only.
func (m *Monitor) probeOne(ctx context.Context, p probe.ServiceProbe) (status probe.ServiceStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error().
				Str("probe", p.Name).
				Interface("panic", rec).
				Msg("probe panicked")
			status = probe.Unreachable(p.Name, probe.DetailUnreachable)
		}
		status.Name = p.Name
		if !status.State.Terminal() {
			status = probe.Unreachable(p.Name, probe.DetailUnreachable)
		}
	}()
	return m.prober.Probe(ctx, p)
}

func (m *Monitor) publish(cycle Cycle) bool {
	m.mu.Lock()
	if m.latest != nil && m.latest.ID >= cycle.ID {
		publishedID := m.latest.ID
		m.mu.Unlock()
		m.logger.Debug().
			Uint64("cycle_id", cycle.ID).
			Uint64("published_id", publishedID).
			Msg("discarding superseded health cycle")
		return false
	}
	defer m.mu.Unlock()

	c := cycle
	m.latest = &c
	// Emitted under the lock so subscribers observe completions in publish order.
	m.emit(Event{Type: EventCycleCompleted, CycleID: c.ID, Cycle: &c})
	return true
}

// Latest returns the most recently published cycle. Before any cycle has
// completed every probe is reported as pending.
func (m *Monitor) Latest() Cycle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == nil {
		statuses := make(map[string]probe.ServiceStatus, len(m.probes))
		for _, p := range m.probes {
			statuses[p.Name] = probe.Pending(p.Name)
		}
		return Cycle{order: m.names(), statuses: statuses}
	}
	return *m.latest
}

// Ready reports whether at least one cycle has been published.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest != nil
}

// Subscribe registers for monitor events. Events are dropped for subscribers
// whose buffer is full so a slow reader never delays a cycle. The returned
// function unsubscribes and closes the channel.
func (m *Monitor) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) emit(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Monitor) names() []string {
	names := make([]string, len(m.probes))
	for i, p := range m.probes {
		names[i] = p.Name
	}
	return names
}
