package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/admin"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/backendtest"
	"github.com/openrag/opsconsole/internal/listing"
	"github.com/openrag/opsconsole/internal/session"
)

func newDocuments(t *testing.T, srv *backendtest.Server) (*admin.Documents, *listing.Lister[backend.DocumentRecord]) {
	t.Helper()
	client := srv.NewClient()
	list := listing.Documents(client, listing.Options{Logger: zerolog.Nop()})
	return admin.NewDocuments(admin.DocumentsConfig{Source: client, List: list, Logger: zerolog.Nop()}), list
}

func TestDocuments_DeleteRemovesExactlyOne(t *testing.T) {
	srv := backendtest.New(t)
	stored := srv.AddDocuments(3, backend.DocumentProcessed)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	docs, list := newDocuments(t, srv)

	_, err := list.Navigate(ctx, listing.Navigation{})
	require.NoError(t, err)

	view, err := docs.Delete(ctx, stored[1].ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Total)
	require.Len(t, view.Items, 2)
	assert.Equal(t, stored[0].ID, view.Items[0].ID)
	assert.Equal(t, stored[2].ID, view.Items[1].ID)
	assert.Len(t, srv.Documents(), 2)

	reqs := srv.Requests("DELETE /documents/{id}")
	require.Len(t, reqs, 1)
	assert.Equal(t, "/documents/"+stored[1].ID, reqs[0].Path)
	assert.NotEmpty(t, reqs[0].Authorization)
}

func TestDocuments_DeleteFailureLeavesList(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddDocuments(3, backend.DocumentProcessed)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	docs, list := newDocuments(t, srv)

	_, err := list.Navigate(ctx, listing.Navigation{})
	require.NoError(t, err)

	view, err := docs.Delete(ctx, "does-not-exist", true)
	require.Error(t, err)
	assert.Equal(t, "Document not found", view.Error)
	assert.Equal(t, 3, view.Total)
	assert.Len(t, view.Items, 3)
}

func TestDocuments_DeleteRequiresConfirmation(t *testing.T) {
	srv := backendtest.New(t)
	stored := srv.AddDocuments(1, backend.DocumentProcessed)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	docs, _ := newDocuments(t, srv)

	view, err := docs.Delete(ctx, stored[0].ID, false)
	assert.ErrorIs(t, err, admin.ErrNotConfirmed)
	assert.Equal(t, admin.ErrNotConfirmed.Error(), view.Error)
	assert.Empty(t, srv.Requests("DELETE /documents/{id}"))

	_, err = docs.Delete(context.Background(), stored[0].ID, true)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Empty(t, srv.Requests("DELETE /documents/{id}"))
}

func TestDocuments_RowStaysUntilAcknowledged(t *testing.T) {
	srv := backendtest.New(t)
	stored := srv.AddDocuments(2, backend.DocumentProcessed)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	docs, list := newDocuments(t, srv)

	_, err := list.Navigate(ctx, listing.Navigation{})
	require.NoError(t, err)

	srv.Delay("DELETE /documents/{id}", 200*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		_, err := docs.Delete(ctx, stored[0].ID, true)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(srv.Requests("DELETE /documents/{id}")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, list.View().Items, 2, "no optimistic removal")
	assert.Equal(t, 2, list.View().Total)

	require.NoError(t, <-done)
	assert.Len(t, list.View().Items, 1)
	assert.Equal(t, 1, list.View().Total)
}
