package admin_test

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/admin"
	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/backendtest"
	"github.com/openrag/opsconsole/internal/session"
)

func newUsers(srv *backendtest.Server) *admin.Users {
	return admin.NewUsers(admin.UsersConfig{Source: srv.NewClient(), Logger: zerolog.Nop()})
}

func usernames(st admin.UsersState) []string {
	out := make([]string, len(st.Users))
	for i, u := range st.Users {
		out[i] = u.Username
	}
	return out
}

func TestUsers_RequiresAdminSession(t *testing.T) {
	srv := backendtest.New(t)
	users := newUsers(srv)

	_, err := users.Load(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)

	ctx := srv.SignIn(context.Background(), "alice", session.RoleUser)
	_, err = users.Load(ctx)
	assert.ErrorIs(t, err, admin.ErrForbidden)

	_, err = users.Create(ctx, backend.NewUser{Username: "bob", Password: "secret"})
	assert.ErrorIs(t, err, admin.ErrForbidden)

	assert.Zero(t, srv.RequestCount())
}

func TestUsers_Load(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	srv.AddUser("alice", "secret", session.RoleUser)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	st, err := users.Load(ctx)
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.Equal(t, []string{"root", "alice"}, usernames(st))

	srv.Fail("GET /auth/users", http.StatusInternalServerError, "")
	st, err = users.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "failed to load users", st.Error)
	assert.Len(t, st.Users, 2, "previous list stays visible")
}

func TestUsers_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      backend.NewUser
		wantErr error
	}{
		{"empty username", backend.NewUser{Username: "  ", Password: "secret"}, admin.ErrUsernameRequired},
		{"empty password", backend.NewUser{Username: "bob"}, admin.ErrPasswordRequired},
		{"short password", backend.NewUser{Username: "bob", Password: "abc"}, admin.ErrPasswordTooShort},
		{"unknown role", backend.NewUser{Username: "bob", Password: "secret", Role: "owner"}, admin.ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.New(t)
			ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
			users := newUsers(srv)

			st, err := users.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, admin.IsValidation(err))
			assert.NotEmpty(t, st.Error)
			assert.Empty(t, st.Users)
			assert.Empty(t, srv.Requests("POST /auth/users"))
		})
	}
}

func TestUsers_CreateAtMinimumPasswordLength(t *testing.T) {
	srv := backendtest.New(t)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	st, err := users.Create(ctx, backend.NewUser{Username: " bob ", Password: "abcd"})
	require.NoError(t, err)

	require.Len(t, srv.Requests("POST /auth/users"), 1)
	assert.Equal(t, []string{"bob"}, usernames(st))
	assert.Equal(t, session.RoleUser, st.Users[0].Role)
	assert.Equal(t, "abcd", srv.Password("bob"))
	assert.Empty(t, st.Error)
}

func TestUsers_CreateRejected(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	_, err := users.Load(ctx)
	require.NoError(t, err)

	st, err := users.Create(ctx, backend.NewUser{Username: "root", Password: "another"})
	require.Error(t, err)
	assert.False(t, backend.Retryable(err))
	assert.Equal(t, http.StatusConflict, backend.StatusCode(err))
	assert.Equal(t, "Username already taken", st.Error)
	assert.Equal(t, []string{"root"}, usernames(st))
}

func TestUsers_DeleteRequiresConfirmation(t *testing.T) {
	srv := backendtest.New(t)
	bob := srv.AddUser("bob", "secret", session.RoleUser)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	st, err := users.Delete(ctx, bob.ID, false)
	assert.ErrorIs(t, err, admin.ErrNotConfirmed)
	assert.Equal(t, admin.ErrNotConfirmed.Error(), st.Error)
	assert.Empty(t, srv.Requests("DELETE /auth/users/{id}"))
}

func TestUsers_SelfDeleteBlocked(t *testing.T) {
	srv := backendtest.New(t)
	root := srv.AddUser("root", "secret", session.RoleAdmin)
	srv.AddUser("bob", "secret", session.RoleUser)

	t.Run("by id", func(t *testing.T) {
		ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
		users := newUsers(srv)
		_, err := users.Load(ctx)
		require.NoError(t, err)

		st, err := users.Delete(ctx, root.ID, true)
		assert.ErrorIs(t, err, admin.ErrSelfDelete)
		assert.Len(t, st.Users, 2)
	})

	t.Run("by username when the principal has no id", func(t *testing.T) {
		ctx := session.WithContext(context.Background(), session.Context{
			Token:     srv.IssueToken("root", session.RoleAdmin),
			Principal: session.Principal{Username: "root", Role: session.RoleAdmin},
		})
		users := newUsers(srv)
		_, err := users.Load(ctx)
		require.NoError(t, err)

		st, err := users.Delete(ctx, root.ID, true)
		assert.ErrorIs(t, err, admin.ErrSelfDelete)
		assert.Len(t, st.Users, 2)
	})

	assert.Empty(t, srv.Requests("DELETE /auth/users/{id}"))
	assert.Len(t, srv.Users(), 2)
}

func TestUsers_SelfDeleteBlockedBeforeListIsLoaded(t *testing.T) {
	srv := backendtest.New(t)
	root := srv.AddUser("root", "secret", session.RoleAdmin)
	bob := srv.AddUser("bob", "secret", session.RoleUser)

	// The account endpoint reports only username and role.
	ctx := session.WithContext(context.Background(), session.Context{
		Token:     srv.IssueToken("root", session.RoleAdmin),
		Principal: session.Principal{Username: "root", Role: session.RoleAdmin},
	})

	t.Run("own account", func(t *testing.T) {
		users := newUsers(srv)

		st, err := users.Delete(ctx, root.ID, true)
		assert.ErrorIs(t, err, admin.ErrSelfDelete)
		assert.Equal(t, admin.ErrSelfDelete.Error(), st.Error)
		assert.Empty(t, srv.Requests("DELETE /auth/users/{id}"))
		assert.Len(t, srv.Users(), 2)
	})

	t.Run("unknown account", func(t *testing.T) {
		users := newUsers(srv)

		_, err := users.Delete(ctx, "no-such-id", true)
		assert.ErrorIs(t, err, admin.ErrUnknownAccount)
		assert.Empty(t, srv.Requests("DELETE /auth/users/{id}"))
	})

	t.Run("account list unavailable", func(t *testing.T) {
		srv.Fail("GET /auth/users", http.StatusServiceUnavailable, "directory offline")
		t.Cleanup(func() { srv.Fail("GET /auth/users", 0, "") })
		users := newUsers(srv)

		st, err := users.Delete(ctx, root.ID, true)
		require.Error(t, err)
		assert.Equal(t, "directory offline", st.Error)
		assert.Empty(t, srv.Requests("DELETE /auth/users/{id}"))
	})

	t.Run("other account", func(t *testing.T) {
		users := newUsers(srv)

		_, err := users.Delete(ctx, bob.ID, true)
		require.NoError(t, err)
		assert.Len(t, srv.Requests("DELETE /auth/users/{id}"), 1)
		assert.Len(t, srv.Users(), 1)
	})
}

// gatedDirectory answers ListUsers with the accounts it held when the call
// arrived, but only once release is closed.
type gatedDirectory struct {
	mu       sync.Mutex
	accounts []backend.UserAccount
	listing  chan struct{}
	release  chan struct{}
}

func (d *gatedDirectory) ListUsers(ctx context.Context) ([]backend.UserAccount, error) {
	d.mu.Lock()
	snapshot := slices.Clone(d.accounts)
	d.mu.Unlock()
	close(d.listing)
	<-d.release
	return snapshot, nil
}

func (d *gatedDirectory) CreateUser(ctx context.Context, in backend.NewUser) (backend.UserAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct := backend.UserAccount{ID: "u-" + in.Username, Username: in.Username, Role: in.Role}
	d.accounts = append(d.accounts, acct)
	return acct, nil
}

func (d *gatedDirectory) DeleteUser(ctx context.Context, id string) error { return nil }

func (d *gatedDirectory) ChangePassword(ctx context.Context, id, password string) error { return nil }

func TestUsers_LoadInFlightDoesNotDropCreatedAccount(t *testing.T) {
	dir := &gatedDirectory{
		accounts: []backend.UserAccount{{ID: "u-root", Username: "root", Role: session.RoleAdmin}},
		listing:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	users := admin.NewUsers(admin.UsersConfig{Source: dir, Logger: zerolog.Nop()})
	ctx := session.WithContext(context.Background(), session.Context{
		Token:     "tok",
		Principal: session.Principal{ID: "u-root", Username: "root", Role: session.RoleAdmin},
	})

	loaded := make(chan admin.UsersState, 1)
	go func() {
		st, err := users.Load(ctx)
		assert.NoError(t, err)
		loaded <- st
	}()
	<-dir.listing

	st, err := users.Create(ctx, backend.NewUser{Username: "bob", Password: "secret", Role: session.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, usernames(st))

	close(dir.release)
	<-loaded

	assert.Contains(t, usernames(users.State()), "bob", "stale list must not replace the created account")
}

func TestUsers_Delete(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	bob := srv.AddUser("bob", "secret", session.RoleUser)
	srv.AddUser("carol", "secret", session.RoleUser)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	_, err := users.Load(ctx)
	require.NoError(t, err)

	st, err := users.Delete(ctx, bob.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "carol"}, usernames(st))

	st, err = users.Delete(ctx, bob.ID, true)
	require.Error(t, err)
	assert.Equal(t, "User not found", st.Error)
	assert.Equal(t, []string{"root", "carol"}, usernames(st))
}

func TestUsers_PasswordEdit(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddUser("root", "secret", session.RoleAdmin)
	bob := srv.AddUser("bob", "secret", session.RoleUser)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)
	_, err := users.Load(ctx)
	require.NoError(t, err)

	_, err = users.ChangePassword(ctx, bob.ID, "newpass")
	assert.ErrorIs(t, err, admin.ErrNoEditInProgress)

	st, err := users.BeginPasswordEdit(ctx, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, st.Editing)
	assert.Equal(t, "bob", st.Editing.Username)

	st, err = users.ChangePassword(ctx, bob.ID, "abc")
	assert.ErrorIs(t, err, admin.ErrPasswordTooShort)
	require.NotNil(t, st.Editing, "handle stays open for a retry")
	assert.Equal(t, admin.ErrPasswordTooShort.Error(), st.Editing.Error)
	assert.Empty(t, srv.Requests("PATCH /auth/users/{id}/password"))

	srv.Fail("PATCH /auth/users/{id}/password", http.StatusBadGateway, "")
	st, err = users.ChangePassword(ctx, bob.ID, "abcd")
	require.Error(t, err)
	require.NotNil(t, st.Editing)
	assert.Equal(t, "failed to change password", st.Editing.Error)
	assert.Equal(t, "secret", srv.Password("bob"))

	srv.Fail("PATCH /auth/users/{id}/password", 0, "")
	st, err = users.ChangePassword(ctx, bob.ID, "abcd")
	require.NoError(t, err)
	assert.Nil(t, st.Editing)
	assert.Empty(t, st.Error)
	assert.Equal(t, "abcd", srv.Password("bob"))
}

func TestUsers_CancelPasswordEdit(t *testing.T) {
	srv := backendtest.New(t)
	bob := srv.AddUser("bob", "secret", session.RoleUser)
	ctx := srv.SignIn(context.Background(), "root", session.RoleAdmin)
	users := newUsers(srv)

	_, err := users.BeginPasswordEdit(ctx, bob.ID)
	require.NoError(t, err)

	st := users.CancelPasswordEdit()
	assert.Nil(t, st.Editing)

	_, err = users.ChangePassword(ctx, bob.ID, "abcd")
	assert.ErrorIs(t, err, admin.ErrNoEditInProgress)
}
