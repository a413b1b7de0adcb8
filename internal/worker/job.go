// Package worker runs console jobs triggered from outside the HTTP API:
// manual health cycles and idle workspace sweeps.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/health"
	"github.com/openrag/opsconsole/internal/probe"
)

// Job types accepted in Message.JobType.
const (
	JobHealthCycle    = "health_cycle"
	JobWorkspaceSweep = "workspace_sweep"
)

var (
	ErrUnknownJob     = errors.New("unknown job type")
	ErrMalformedJob   = errors.New("malformed job message")
	ErrJobUnavailable = errors.New("job not configured")
)

// Message is a job request.
type Message struct {
	JobType string `json:"job_type"`
}

// CycleRunner runs one health cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) health.Cycle
}

// Sweeper evicts idle workspaces.
type Sweeper interface {
	Sweep() int
}

// JobConfig holds configuration for the job processor.
type JobConfig struct {
	Monitor CycleRunner
	Sweeper Sweeper
	Logger  zerolog.Logger

	// Timeout bounds a single job. Default: 1 minute
	Timeout time.Duration
}

// Result is the outcome of one job.
type Result struct {
	JobType     string
	StartTime   time.Time
	Duration    time.Duration
	CycleID     uint64
	Overall     probe.State
	Unreachable int
	Evicted     int
}

// Stats are counters over every processed job.
type Stats struct {
	Processed    int64
	Failed       int64
	Cycles       int64
	LastJobAt    time.Time
	LastJobType  string
	LastDuration time.Duration
}

// Job processes job messages. It never retries: a failed job is reported
// and dropped.
type Job struct {
	monitor CycleRunner
	sweeper Sweeper
	logger  zerolog.Logger
	timeout time.Duration

	mu    sync.RWMutex
	stats Stats
}

// NewJob creates a job processor.
func NewJob(cfg JobConfig) *Job {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Job{
		monitor: cfg.Monitor,
		sweeper: cfg.Sweeper,
		logger:  cfg.Logger,
		timeout: timeout,
	}
}

// Process decodes data and runs the job it names.
func (j *Job) Process(ctx context.Context, data []byte) (*Result, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		j.record("", 0, err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return j.Run(ctx, msg)
}

// Run executes msg.
func (j *Job) Run(ctx context.Context, msg Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result := &Result{JobType: msg.JobType, StartTime: time.Now()}

	var err error
	switch msg.JobType {
	case JobHealthCycle:
		err = j.runHealthCycle(ctx, result)
	case JobWorkspaceSweep:
		err = j.runSweep(result)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
	result.Duration = time.Since(result.StartTime)
	j.record(msg.JobType, result.Duration, err)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (j *Job) runHealthCycle(ctx context.Context, result *Result) error {
	if j.monitor == nil {
		return fmt.Errorf("%s: %w", JobHealthCycle, ErrJobUnavailable)
	}

	cycle := j.monitor.RunCycle(ctx)
	result.CycleID = cycle.ID
	result.Overall = cycle.Overall()
	result.Unreachable = cycle.Count(probe.StateUnreachable)

	j.logger.Info().
		Uint64("cycle_id", cycle.ID).
		Str("overall", string(result.Overall)).
		Int("unreachable", result.Unreachable).
		Msg("manual health cycle completed")
	return nil
}

func (j *Job) runSweep(result *Result) error {
	if j.sweeper == nil {
		return fmt.Errorf("%s: %w", JobWorkspaceSweep, ErrJobUnavailable)
	}
	result.Evicted = j.sweeper.Sweep()
	return nil
}

func (j *Job) record(jobType string, d time.Duration, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Processed++
	if err != nil {
		j.stats.Failed++
	}
	if jobType == JobHealthCycle && err == nil {
		j.stats.Cycles++
	}
	j.stats.LastJobAt = time.Now()
	j.stats.LastJobType = jobType
	j.stats.LastDuration = d
}

// Stats returns a copy of the job counters.
func (j *Job) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}
