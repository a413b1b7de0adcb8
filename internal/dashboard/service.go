package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
)

// ErrUnavailable is returned when every snapshot section failed.
var ErrUnavailable = errors.New("dashboard unavailable")

// Source is the subset of the backend client the dashboard reads from.
type Source interface {
	Stats(ctx context.Context) (*backend.Stats, error)
	Collections(ctx context.Context) ([]backend.CollectionSummary, error)
}

// ServiceConfig holds configuration for the snapshot service.
type ServiceConfig struct {
	Source Source
	Logger zerolog.Logger
}

// Service fetches snapshots. It holds no state and is safe for concurrent use.
type Service struct {
	source Source
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a snapshot service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		source: cfg.Source,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Fetch calls the stats and collections endpoints concurrently and merges
// them. A failed section is recorded in Snapshot.Errors and left empty.
// ErrUnavailable is returned only when both sections failed.
func (s *Service) Fetch(ctx context.Context) (Snapshot, error) {
	var (
		wg          sync.WaitGroup
		stats       *backend.Stats
		statsErr    error
		collections []backend.CollectionSummary
		collErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = s.source.Stats(ctx)
	}()
	go func() {
		defer wg.Done()
		collections, collErr = s.source.Collections(ctx)
	}()
	wg.Wait()

	snap := merge(stats, collections, s.now().UTC())

	if statsErr != nil {
		snap.setError(SectionStats, backend.Message(statsErr, "failed to load stats"))
		s.logger.Warn().Err(statsErr).Str("section", SectionStats).Bool("transport", backend.Retryable(statsErr)).Msg("dashboard section unavailable")
	}
	if collErr != nil {
		snap.setError(SectionCollections, backend.Message(collErr, "failed to load collections"))
		s.logger.Warn().Err(collErr).Str("section", SectionCollections).Bool("transport", backend.Retryable(collErr)).Msg("dashboard section unavailable")
	}

	if statsErr != nil && collErr != nil {
		return snap, errors.Join(ErrUnavailable, statsErr, collErr)
	}
	return snap, nil
}

func (s *Snapshot) setError(section, msg string) {
	if s.Errors == nil {
		s.Errors = make(map[string]string)
	}
	s.Errors[section] = msg
}
