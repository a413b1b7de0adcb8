// Package listing pages through backend collections with offset/limit
// queries. Every navigation re-fetches the requested page; nothing is cached
// between pages. Text search narrows only the rows of the current page.
package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/session"
)

const (
	// DefaultPageSize is used when no page size is configured.
	DefaultPageSize = 50

	// DefaultMaxPageSize bounds the page size a caller may request.
	DefaultMaxPageSize = 200
)

var (
	ErrInvalidStatus   = errors.New("invalid status filter")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidPage     = errors.New("invalid page index")
)

// FetchFunc fetches one page and the backend's total item count.
type FetchFunc[T any] func(ctx context.Context, q backend.ListQuery) ([]T, int, error)

// Config holds configuration for a lister.
type Config[T any] struct {
	// Name identifies the lister in logs and error messages.
	Name string

	Fetch FetchFunc[T]

	// Match reports whether an item matches the local search text.
	// A nil Match disables search.
	Match func(item T, search string) bool

	// ID returns the identifier used by Remove.
	ID func(item T) string

	// Statuses are the server-side status filters accepted. Empty means the
	// collection has no status filter.
	Statuses []string

	PageSize    int
	MaxPageSize int

	Logger zerolog.Logger
}

// Navigation is a requested change of view. Nil fields keep their current value.
type Navigation struct {
	Status    *string
	PageSize  *int
	PageIndex *int
	Search    *string
}

// searchOnly reports whether the navigation touches nothing the backend sees.
func (n Navigation) searchOnly() bool {
	return n.Search != nil && n.Status == nil && n.PageSize == nil && n.PageIndex == nil
}

// View is the rendered state of a lister.
type View[T any] struct {
	Items     []T    `json:"items"`
	PageRows  int    `json:"page_rows"`
	Total     int    `json:"total"`
	PageIndex int    `json:"page_index"`
	PageSize  int    `json:"page_size"`
	PageCount int    `json:"page_count"`
	HasPrev   bool   `json:"has_prev"`
	HasNext   bool   `json:"has_next"`
	Status    string `json:"status,omitempty"`
	Search    string `json:"search,omitempty"`
	Error     string `json:"error,omitempty"`
	Loaded    bool   `json:"loaded"`
}

type pageKey struct {
	status string
	size   int
	index  int
}

// Lister is one operator's paged view of a backend collection.
// It is safe for concurrent use; only the most recently requested fetch is
// applied, so a slow response for an abandoned page is dropped.
type Lister[T any] struct {
	name     string
	fetch    FetchFunc[T]
	match    func(T, string) bool
	id       func(T) string
	statuses []string
	maxSize  int
	logger   zerolog.Logger

	mu     sync.Mutex
	key    pageKey
	search string
	items  []T
	total  int
	errMsg string
	seq    uint64
	loaded bool
}

// New creates a lister positioned on the first page with no filters.
func New[T any](cfg Config[T]) *Lister[T] {
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	maxSize := cfg.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	if size > maxSize {
		size = maxSize
	}

	name := cfg.Name
	if name == "" {
		name = "items"
	}

	return &Lister[T]{
		name:     name,
		fetch:    cfg.Fetch,
		match:    cfg.Match,
		id:       cfg.ID,
		statuses: cfg.Statuses,
		maxSize:  maxSize,
		logger:   cfg.Logger.With().Str("lister", name).Logger(),
		key:      pageKey{size: size},
		items:    []T{},
	}
}

// Navigate applies nav and fetches the resulting page. Changing the status
// filter or page size resets the page index to 0. A navigation that only
// changes the search text is applied locally without a request once a page
// has been loaded.
//
// Fetch failures are not returned: they are kept in View.Error and the
// previous rows stay visible. Errors are returned only for invalid
// navigation and for a missing session.
func (l *Lister[T]) Navigate(ctx context.Context, nav Navigation) (View[T], error) {
	if _, err := session.Require(ctx); err != nil {
		return View[T]{}, fmt.Errorf("%s: %w", l.name, err)
	}
	if err := l.validate(nav); err != nil {
		return View[T]{}, err
	}

	l.mu.Lock()
	if nav.Search != nil {
		l.search = *nav.Search
	}
	if nav.searchOnly() && l.loaded {
		defer l.mu.Unlock()
		return l.viewLocked(), nil
	}

	next := l.key
	if nav.Status != nil && *nav.Status != next.status {
		next.status = *nav.Status
		next.index = 0
	}
	if nav.PageSize != nil && *nav.PageSize != next.size {
		next.size = *nav.PageSize
		next.index = 0
	}
	if nav.PageIndex != nil && next == l.key {
		next.index = *nav.PageIndex
	}
	l.key = next
	l.mu.Unlock()

	return l.load(ctx), nil
}

// Refresh re-fetches the current page.
func (l *Lister[T]) Refresh(ctx context.Context) (View[T], error) {
	return l.Navigate(ctx, Navigation{})
}

// View returns the current state without fetching.
func (l *Lister[T]) View() View[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

// Remove drops the item with id from the current page and decrements the
// total. It must be called only after the backend acknowledged the deletion.
func (l *Lister[T]) Remove(id string) bool {
	if l.id == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := slices.IndexFunc(l.items, func(item T) bool { return l.id(item) == id })
	if idx < 0 {
		return false
	}
	l.items = slices.Delete(slices.Clone(l.items), idx, idx+1)
	if l.total > 0 {
		l.total--
	}
	l.errMsg = ""
	return true
}

// SetError shows msg in the view's error slot until the next successful fetch.
func (l *Lister[T]) SetError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errMsg = msg
}

func (l *Lister[T]) validate(nav Navigation) error {
	if nav.Status != nil && *nav.Status != "" && !slices.Contains(l.statuses, *nav.Status) {
		return fmt.Errorf("%s: %w: %q", l.name, ErrInvalidStatus, *nav.Status)
	}
	if nav.PageSize != nil && (*nav.PageSize < 1 || *nav.PageSize > l.maxSize) {
		return fmt.Errorf("%s: %w: must be between 1 and %d", l.name, ErrInvalidPageSize, l.maxSize)
	}
	if nav.PageIndex != nil && *nav.PageIndex < 0 {
		return fmt.Errorf("%s: %w: %d", l.name, ErrInvalidPage, *nav.PageIndex)
	}
	return nil
}

func (l *Lister[T]) load(ctx context.Context) View[T] {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	key := l.key
	l.mu.Unlock()

	items, total, err := l.fetch(ctx, backend.ListQuery{
		Limit:  key.size,
		Offset: key.index * key.size,
		Status: key.status,
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq || key != l.key {
		l.logger.Debug().
			Int("page_index", key.index).
			Int("current_page_index", l.key.index).
			Msg("dropping stale page")
		return l.viewLocked()
	}

	if err != nil {
		l.errMsg = backend.Message(err, "failed to load "+l.name)
		l.logger.Warn().Err(err).Int("page_index", key.index).Bool("transport", backend.Retryable(err)).Msg("page fetch failed")
		return l.viewLocked()
	}

	if items == nil {
		items = []T{}
	}
	l.items = items
	l.total = max(total, len(items))
	l.errMsg = ""
	l.loaded = true
	return l.viewLocked()
}

func (l *Lister[T]) viewLocked() View[T] {
	rows := l.items
	if l.search != "" && l.match != nil {
		rows = make([]T, 0, len(l.items))
		for _, item := range l.items {
			if l.match(item, l.search) {
				rows = append(rows, item)
			}
		}
	} else {
		rows = slices.Clone(rows)
	}

	count := PageCount(l.total, l.key.size)
	return View[T]{
		Items:     rows,
		PageRows:  len(l.items),
		Total:     l.total,
		PageIndex: l.key.index,
		PageSize:  l.key.size,
		PageCount: count,
		HasPrev:   l.key.index > 0,
		HasNext:   l.key.index < count-1,
		Status:    l.key.status,
		Search:    l.search,
		Error:     l.errMsg,
		Loaded:    l.loaded,
	}
}

// PageCount returns ceil(total / size).
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
