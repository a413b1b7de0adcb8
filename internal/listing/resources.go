package listing

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
)

// Options are the settings shared by the backend-backed listers.
type Options struct {
	PageSize    int
	MaxPageSize int
	Logger      zerolog.Logger
}

// DocumentSource lists documents.
type DocumentSource interface {
	ListDocuments(ctx context.Context, q backend.ListQuery) ([]backend.DocumentRecord, int, error)
}

// HistorySource lists query history.
type HistorySource interface {
	ListHistory(ctx context.Context, q backend.ListQuery) ([]backend.QueryHistoryEntry, int, error)
}

// Documents returns a lister over ingested documents, filterable by status
// and searchable by filename.
func Documents(src DocumentSource, opts Options) *Lister[backend.DocumentRecord] {
	return New(Config[backend.DocumentRecord]{
		Name:     "documents",
		Fetch:    src.ListDocuments,
		Statuses: backend.DocumentStatuses,
		Match: func(d backend.DocumentRecord, search string) bool {
			return containsFold(d.Filename, search)
		},
		ID:          func(d backend.DocumentRecord) string { return d.ID },
		PageSize:    opts.PageSize,
		MaxPageSize: opts.MaxPageSize,
		Logger:      opts.Logger,
	})
}

// History returns a lister over past queries, searchable by query and
// response text.
func History(src HistorySource, opts Options) *Lister[backend.QueryHistoryEntry] {
	return New(Config[backend.QueryHistoryEntry]{
		Name:  "history",
		Fetch: src.ListHistory,
		Match: func(e backend.QueryHistoryEntry, search string) bool {
			if containsFold(e.QueryText, search) {
				return true
			}
			return e.ResponseText != nil && containsFold(*e.ResponseText, search)
		},
		ID:          func(e backend.QueryHistoryEntry) string { return e.ID },
		PageSize:    opts.PageSize,
		MaxPageSize: opts.MaxPageSize,
		Logger:      opts.Logger,
	})
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}
