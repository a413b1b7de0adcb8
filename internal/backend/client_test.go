package backend_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/backendtest"
	"github.com/openrag/opsconsole/internal/probe"
	"github.com/openrag/opsconsole/internal/resilience"
	"github.com/openrag/opsconsole/internal/session"
)

func TestClient_ForwardsTokenOpaquely(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	client := srv.NewClient()

	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	token := session.FromContext(ctx).Token

	_, err := client.ListUsers(ctx)
	require.NoError(t, err)

	reqs := srv.Requests("GET /auth/users")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+token, reqs[0].Authorization)
}

func TestClient_AuthenticatedCallWithoutSession(t *testing.T) {
	srv := backendtest.New(t)
	client := srv.NewClient()

	_, err := client.ListUsers(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, _, err = client.ListDocuments(context.Background(), backend.ListQuery{Limit: 10})
	assert.ErrorIs(t, err, session.ErrNoSession)

	assert.Equal(t, 0, srv.RequestCount(), "no request may be issued without a session")
}

func TestClient_Me(t *testing.T) {
	srv := backendtest.New(t)
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "alice", session.RoleUser)

	principal, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, session.RoleUser, principal.Role)
	assert.Empty(t, principal.ID)
}

func TestClient_ListDocumentsPaging(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddDocuments(100, backend.DocumentProcessed)
	srv.AddDocuments(25, backend.DocumentFailed)
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)

	docs, total, err := client.ListDocuments(ctx, backend.ListQuery{Limit: 50, Offset: 100})
	require.NoError(t, err)
	assert.Equal(t, 125, total)
	assert.Len(t, docs, 25)

	reqs := srv.Requests("GET /documents")
	require.Len(t, reqs, 1)
	assert.Equal(t, "50", reqs[0].Query["limit"])
	assert.Equal(t, "100", reqs[0].Query["offset"])

	docs, total, err = client.ListDocuments(ctx, backend.ListQuery{Limit: 10, Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, docs, 10)
	for _, d := range docs {
		assert.Equal(t, backend.DocumentFailed, d.Status)
	}
}

func TestClient_RejectedCarriesDetail(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)

	_, err := client.CreateUser(ctx, backend.NewUser{Username: "root", Password: "secret", Role: session.RoleUser})
	require.Error(t, err)

	var rejected *backend.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusConflict, rejected.StatusCode)
	assert.Equal(t, "Username already taken", rejected.Detail)
	assert.Equal(t, "Username already taken", backend.Message(err, "failed to create user"))
	assert.False(t, backend.Retryable(err))
	assert.Equal(t, http.StatusConflict, backend.StatusCode(err))
}

func TestClient_RejectedWithoutDetailFallsBack(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddDocuments(1, backend.DocumentProcessed)
	srv.Fail("DELETE /documents/{id}", http.StatusInternalServerError, "")
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)

	err := client.DeleteDocument(ctx, srv.Documents()[0].ID)
	require.Error(t, err)
	assert.Equal(t, "failed to delete document", backend.Message(err, "failed to delete document"))
	assert.Equal(t, http.StatusInternalServerError, backend.StatusCode(err))
	assert.Len(t, srv.Documents(), 1)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := backendtest.New(t)
	client := backend.NewClient(backend.ClientConfig{BaseURL: srv.URL, Logger: zerolog.Nop()})
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	srv.Close()

	_, err := client.ListUsers(ctx)
	require.Error(t, err)

	var te *backend.TransportError
	assert.True(t, errors.As(err, &te))
	assert.True(t, backend.Retryable(err))
	assert.Equal(t, "failed to load users", backend.Message(err, "failed to load users"))
}

func TestClient_TimeoutIsTransportFailure(t *testing.T) {
	srv := backendtest.New(t)
	srv.Delay("GET /collections", time.Second)
	client := backend.NewClient(backend.ClientConfig{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})

	_, err := client.Collections(context.Background())
	assert.True(t, backend.Retryable(err))
}

func TestClient_CircuitOpenIsTransportFailure(t *testing.T) {
	srv := backendtest.New(t)
	srv.Fail("GET /collections", http.StatusBadGateway, "")
	registry := resilience.NewRegistry()
	client := backend.NewClient(backend.ClientConfig{BaseURL: srv.URL, Registry: registry, Logger: zerolog.Nop()})

	for i := 0; i < 5; i++ {
		_, err := client.Collections(context.Background())
		require.Error(t, err)
		assert.False(t, backend.Retryable(err), "5xx is a rejection")
	}

	_, err := client.Collections(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, backend.Retryable(err))

	health := registry.Health(backend.UpstreamName)
	require.NotNil(t, health)
	assert.True(t, health.IsUnhealthy())
}

func TestClient_Collections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []backend.CollectionSummary
	}{
		{
			name: "wrapped",
			body: `{"collections":[{"name":"docs","points_count":12,"indexed_vectors_count":10,"segments_count":2,"status":"green"}]}`,
			want: []backend.CollectionSummary{
				{Name: "docs", PointsCount: 12, IndexedCount: 10, SegmentsCount: 2, Status: probe.StateHealthy, RawStatus: "green"},
			},
		},
		{
			name: "bare array with vectors_count",
			body: `[{"name":"docs","vectors_count":7,"status":"yellow"}]`,
			want: []backend.CollectionSummary{
				{Name: "docs", PointsCount: 7, Status: probe.StateDegraded, RawStatus: "yellow"},
			},
		},
		{
			name: "missing field",
			body: `{}`,
			want: []backend.CollectionSummary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.New(t)
			srv.SetCollections(tt.body)

			got, err := srv.NewClient().Collections(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := backendtest.New(t)
	srv.SetCollections(`not json`)

	_, err := srv.NewClient().Collections(context.Background())
	assert.ErrorIs(t, err, backend.ErrMalformedResponse)
	assert.False(t, backend.Retryable(err))
}

func TestClient_UserLifecycle(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)

	created, err := client.CreateUser(ctx, backend.NewUser{Username: "bob", Password: "hunter2", Role: session.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "bob", created.Username)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	require.NoError(t, client.ChangePassword(ctx, created.ID, "newpass"))
	assert.Equal(t, "newpass", srv.Password("bob"))

	require.NoError(t, client.DeleteUser(ctx, created.ID))
	users, err := client.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
}

func TestClient_NonAdminIsRejected(t *testing.T) {
	srv := backendtest.New(t)
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "alice", session.RoleUser)

	_, err := client.ListUsers(ctx)
	assert.Equal(t, http.StatusForbidden, backend.StatusCode(err))
	assert.Equal(t, "Admin access required", backend.Message(err, "failed to load users"))
}

func TestClient_StatsAndHistory(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddDocuments(3, backend.DocumentProcessed)
	srv.AddHistory(backend.QueryHistoryEntry{QueryText: "what is rag?"})
	client := srv.NewClient()
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.Documents)
	assert.Equal(t, int64(3), stats.Documents.Total)
	assert.Equal(t, int64(3), stats.Documents.Processed)

	entries, total, err := client.ListHistory(ctx, backend.ListQuery{Limit: 10, Status: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "what is rag?", entries[0].QueryText)

	reqs := srv.Requests("GET /history")
	require.Len(t, reqs, 1)
	_, hasStatus := reqs[0].Query["status"]
	assert.False(t, hasStatus)
}
