// Package console owns the per-operator view models. Each signed-in operator
// gets a Workspace with its own listers, users directory and dashboard.
package console

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/admin"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/dashboard"
	"github.com/openrag/opsconsole/internal/listing"
	"github.com/openrag/opsconsole/internal/session"
)

// DefaultIdleTTL is how long an unused workspace is kept.
const DefaultIdleTTL = 30 * time.Minute

// Config holds configuration for the shell.
type Config struct {
	Backend *backend.Client

	PageSize    int
	MaxPageSize int

	// IdleTTL evicts workspaces unused for this long (default: 30m).
	IdleTTL time.Duration

	Logger zerolog.Logger
}

// Workspace is the set of view models owned by one operator.
type Workspace struct {
	Documents     *listing.Lister[backend.DocumentRecord]
	DocumentAdmin *admin.Documents
	History       *listing.Lister[backend.QueryHistoryEntry]
	Users         *admin.Users
	Dashboard     *dashboard.View

	username string
	lastUsed time.Time
}

// Username returns the operator the workspace belongs to.
func (w *Workspace) Username() string {
	return w.username
}

// Shell hands out workspaces keyed by operator.
type Shell struct {
	backend   *backend.Client
	dashboard *dashboard.Service
	paging    listing.Options
	idleTTL   time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewShell creates a shell with no workspaces.
func NewShell(cfg Config) *Shell {
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	return &Shell{
		backend: cfg.Backend,
		dashboard: dashboard.NewService(dashboard.ServiceConfig{
			Source: cfg.Backend,
			Logger: cfg.Logger,
		}),
		paging: listing.Options{
			PageSize:    cfg.PageSize,
			MaxPageSize: cfg.MaxPageSize,
			Logger:      cfg.Logger,
		},
		idleTTL:    idleTTL,
		logger:     cfg.Logger,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Workspace returns the workspace of the operator signed in on ctx,
// creating it on first use.
func (s *Shell) Workspace(ctx context.Context) (*Workspace, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	key := sess.Principal.Username

	s.mu.Lock()
	defer s.mu.Unlock()

	if ws, ok := s.workspaces[key]; ok {
		ws.lastUsed = s.now()
		return ws, nil
	}

	ws := s.newWorkspace(key)
	s.workspaces[key] = ws
	s.logger.Debug().Str("username", key).Int("workspaces", len(s.workspaces)).Msg("workspace created")
	return ws, nil
}

func (s *Shell) newWorkspace(username string) *Workspace {
	logger := s.logger.With().Str("username", username).Logger()
	paging := s.paging
	paging.Logger = logger

	documents := listing.Documents(s.backend, paging)
	return &Workspace{
		Documents: documents,
		DocumentAdmin: admin.NewDocuments(admin.DocumentsConfig{
			Source: s.backend,
			List:   documents,
			Logger: logger,
		}),
		History:   listing.History(s.backend, paging),
		Users:     admin.NewUsers(admin.UsersConfig{Source: s.backend, Logger: logger}),
		Dashboard: dashboard.NewView(s.dashboard),
		username:  username,
		lastUsed:  s.now(),
	}
}

// Sweep evicts workspaces idle for longer than the TTL and returns how many
// were removed.
func (s *Shell) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ws := range s.workspaces {
		if ws.lastUsed.Before(cutoff) {
			delete(s.workspaces, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info().Int("evicted", removed).Int("workspaces", len(s.workspaces)).Msg("idle workspaces evicted")
	}
	return removed
}

// Len returns the number of live workspaces.
func (s *Shell) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workspaces)
}

// Run sweeps idle workspaces until ctx is cancelled.
func (s *Shell) Run(ctx context.Context) {
	ticker := time.NewTicker(s.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
