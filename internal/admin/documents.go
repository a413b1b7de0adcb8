package admin

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/listing"
	"github.com/openrag/opsconsole/internal/session"
)

// DocumentDeleter deletes documents.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, id string) error
}

// DocumentsConfig holds configuration for document mutations.
type DocumentsConfig struct {
	Source DocumentDeleter

	// List is the documents lister the deletions are applied to.
	List *listing.Lister[backend.DocumentRecord]

	Logger zerolog.Logger
}

// Documents deletes documents and keeps one documents lister in step.
type Documents struct {
	source DocumentDeleter
	list   *listing.Lister[backend.DocumentRecord]
	logger zerolog.Logger
}

// NewDocuments creates a document mutator bound to a lister.
func NewDocuments(cfg DocumentsConfig) *Documents {
	return &Documents{
		source: cfg.Source,
		list:   cfg.List,
		logger: cfg.Logger.With().Str("component", "documents").Logger(),
	}
}

// Delete removes the document with id after the caller confirmed it. The row
// leaves the list and the total drops by one only once the backend
// acknowledged. On failure the list is unchanged and shows the error.
func (d *Documents) Delete(ctx context.Context, id string, confirmed bool) (listing.View[backend.DocumentRecord], error) {
	if _, err := session.Require(ctx); err != nil {
		return listing.View[backend.DocumentRecord]{}, err
	}
	if id == "" {
		return d.fail(invalid("id", ErrIDRequired), "")
	}
	if !confirmed {
		return d.fail(invalid("", ErrNotConfirmed), "")
	}

	if err := d.source.DeleteDocument(ctx, id); err != nil {
		return d.fail(err, "failed to delete document")
	}

	d.logger.Info().Str("document_id", id).Msg("document deleted")
	d.list.Remove(id)
	return d.list.View(), nil
}

func (d *Documents) fail(err error, fallback string) (listing.View[backend.DocumentRecord], error) {
	d.list.SetError(userMessage(err, fallback))
	return d.list.View(), err
}
