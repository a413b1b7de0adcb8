package health

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule decides the pause before the next cycle. While every probe is
// unreachable the pause grows exponentially up to the max interval, and it
// snaps back to the base interval as soon as any probe answers.
type schedule struct {
	base time.Duration
	bo   *backoff.ExponentialBackOff
}

func newSchedule(base, max time.Duration) *schedule {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &schedule{base: base, bo: bo}
}

func (s *schedule) next(c Cycle) time.Duration {
	if !c.AllUnreachable() {
		s.bo.Reset()
		return s.base
	}
	return s.bo.NextBackOff()
}

// Run executes cycles until ctx is cancelled, starting immediately.
func (m *Monitor) Run(ctx context.Context) {
	sched := newSchedule(m.interval, m.maxInterval)

	m.logger.Info().
		Int("probes", len(m.probes)).
		Dur("interval", m.interval).
		Dur("max_interval", m.maxInterval).
		Msg("health monitor started")

	for {
		cycle := m.RunCycle(ctx)
		wait := sched.next(cycle)
		if wait > m.interval {
			m.logger.Warn().
				Dur("next_in", wait).
				Msg("all services unreachable, slowing health cycles")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info().Msg("health monitor stopped")
			return
		case <-timer.C:
		}
	}
}
