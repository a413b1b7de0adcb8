package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/session"
)

// UserDirectory is the subset of the backend client used for accounts.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]backend.UserAccount, error)
	CreateUser(ctx context.Context, in backend.NewUser) (backend.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error
	ChangePassword(ctx context.Context, id, password string) error
}

// UsersConfig holds configuration for the users directory.
type UsersConfig struct {
	Source UserDirectory
	Logger zerolog.Logger
}

// PasswordEdit is an open password change for one account.
type PasswordEdit struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UsersState is what the users section renders.
type UsersState struct {
	Users   []backend.UserAccount `json:"users"`
	Editing *PasswordEdit         `json:"editing,omitempty"`
	Error   string                `json:"error,omitempty"`
	Loaded  bool                  `json:"loaded"`
}

// Users is one operator's view of the account directory.
type Users struct {
	source UserDirectory
	logger zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	users   []backend.UserAccount
	editing *PasswordEdit
	errMsg  string
	loaded  bool
}

// NewUsers creates an empty users directory.
func NewUsers(cfg UsersConfig) *Users {
	return &Users{
		source: cfg.Source,
		logger: cfg.Logger.With().Str("component", "users").Logger(),
		users:  []backend.UserAccount{},
	}
}

// Load fetches the account list. A failed fetch keeps the previous list and
// records the error in the state.
func (u *Users) Load(ctx context.Context) (UsersState, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return UsersState{}, err
	}

	u.mu.Lock()
	u.seq++
	seq := u.seq
	u.mu.Unlock()

	users, err := u.source.ListUsers(ctx)

	u.mu.Lock()
	defer u.mu.Unlock()

	if seq != u.seq {
		return u.stateLocked(), nil
	}
	if err != nil {
		u.errMsg = backend.Message(err, "failed to load users")
		return u.stateLocked(), nil
	}
	u.users = users
	u.errMsg = ""
	u.loaded = true
	return u.stateLocked(), nil
}

// State returns the current state without fetching.
func (u *Users) State() UsersState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stateLocked()
}

// Create validates in locally, then creates the account. On success the new
// account is appended to the list. On failure the list is unchanged.
func (u *Users) Create(ctx context.Context, in backend.NewUser) (UsersState, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return UsersState{}, err
	}

	in.Username = strings.TrimSpace(in.Username)
	if in.Role == "" {
		in.Role = session.RoleUser
	}
	if err := validateNewUser(in); err != nil {
		return u.fail(err, "")
	}

	created, err := u.source.CreateUser(ctx, in)
	if err != nil {
		return u.fail(err, "failed to create user")
	}

	u.logger.Info().
		Str("user_id", created.ID).
		Str("username", created.Username).
		Str("role", string(created.Role)).
		Msg("user created")

	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++ // a load started before this create must not drop the account
	u.users = append(slices.Clone(u.users), created)
	u.errMsg = ""
	return u.stateLocked(), nil
}

// Delete removes the account with id. The caller must have confirmed the
// deletion. Deleting the signed-in account is refused without a request.
// The account leaves the local list only after the backend acknowledged.
func (u *Users) Delete(ctx context.Context, id string, confirmed bool) (UsersState, error) {
	sess, err := requireAdmin(ctx)
	if err != nil {
		return UsersState{}, err
	}
	if id == "" {
		return u.fail(invalid("id", ErrIDRequired), "")
	}
	if !confirmed {
		return u.fail(invalid("", ErrNotConfirmed), "")
	}
	username := u.usernameFor(id)
	if sess.Principal.ID == "" && username == "" {
		// Without an id the guard needs the target's username, so read it
		// from the backend before sending the delete.
		username, err = u.lookupUsername(ctx, id)
		if err != nil {
			return u.fail(err, "failed to verify account")
		}
	}
	if sess.IsSelf(id, username) {
		return u.fail(invalid("id", ErrSelfDelete), "")
	}

	if err := u.source.DeleteUser(ctx, id); err != nil {
		return u.fail(err, "failed to delete user")
	}

	u.logger.Info().Str("user_id", id).Msg("user deleted")

	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++
	u.users = slices.DeleteFunc(slices.Clone(u.users), func(a backend.UserAccount) bool { return a.ID == id })
	if u.editing != nil && u.editing.UserID == id {
		u.editing = nil
	}
	u.errMsg = ""
	return u.stateLocked(), nil
}

// BeginPasswordEdit opens the password handle for id, replacing any other.
func (u *Users) BeginPasswordEdit(ctx context.Context, id string) (UsersState, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return UsersState{}, err
	}
	if id == "" {
		return u.fail(invalid("id", ErrIDRequired), "")
	}

	username := u.usernameFor(id)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.editing = &PasswordEdit{UserID: id, Username: username}
	return u.stateLocked(), nil
}

// CancelPasswordEdit closes the password handle.
func (u *Users) CancelPasswordEdit() UsersState {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.editing = nil
	return u.stateLocked()
}

// ChangePassword sets a new password through the open handle for id. The
// handle is closed on success and stays open with the error on failure.
func (u *Users) ChangePassword(ctx context.Context, id, password string) (UsersState, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return UsersState{}, err
	}

	u.mu.Lock()
	open := u.editing != nil && u.editing.UserID == id
	u.mu.Unlock()
	if !open {
		return u.fail(invalid("id", ErrNoEditInProgress), "")
	}

	if err := validatePassword(password); err != nil {
		return u.failEdit(id, err, "")
	}
	if err := u.source.ChangePassword(ctx, id, password); err != nil {
		return u.failEdit(id, err, "failed to change password")
	}

	u.logger.Info().Str("user_id", id).Msg("password changed")

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.editing != nil && u.editing.UserID == id {
		u.editing = nil
	}
	u.errMsg = ""
	return u.stateLocked(), nil
}

func (u *Users) fail(err error, fallback string) (UsersState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.errMsg = userMessage(err, fallback)
	return u.stateLocked(), err
}

func (u *Users) failEdit(id string, err error, fallback string) (UsersState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	msg := userMessage(err, fallback)
	if u.editing != nil && u.editing.UserID == id {
		edit := *u.editing
		edit.Error = msg
		u.editing = &edit
	}
	u.errMsg = msg
	return u.stateLocked(), err
}

func (u *Users) lookupUsername(ctx context.Context, id string) (string, error) {
	accounts, err := u.source.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a.Username, nil
		}
	}
	return "", invalid("id", ErrUnknownAccount)
}

func (u *Users) usernameFor(id string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, a := range u.users {
		if a.ID == id {
			return a.Username
		}
	}
	return ""
}

func (u *Users) stateLocked() UsersState {
	st := UsersState{
		Users:  slices.Clone(u.users),
		Error:  u.errMsg,
		Loaded: u.loaded,
	}
	if u.editing != nil {
		edit := *u.editing
		st.Editing = &edit
	}
	return st
}

func validateNewUser(in backend.NewUser) error {
	if in.Username == "" {
		return invalid("username", ErrUsernameRequired)
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if !in.Role.Valid() {
		return invalid("role", fmt.Errorf("%w: %q", ErrInvalidRole, in.Role))
	}
	return nil
}

func requireAdmin(ctx context.Context) (session.Context, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return session.Context{}, err
	}
	if !sess.HasRole(session.RoleAdmin) {
		return session.Context{}, ErrForbidden
	}
	return sess, nil
}

// userMessage is the text shown for err: the validation reason, the backend
// detail, or fallback.
func userMessage(err error, fallback string) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Err.Error()
	}
	return backend.Message(err, fallback)
}
