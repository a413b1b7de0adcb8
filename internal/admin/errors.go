// Package admin applies operator mutations to backend resources: creating,
// deleting and re-keying accounts, and deleting documents. Local state is
// changed only after the backend acknowledges a mutation. Validation runs
// before any request is made.
package admin

import (
	"errors"
	"fmt"
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 4

var (
	ErrForbidden        = errors.New("admin role required")
	ErrNotConfirmed     = errors.New("deletion not confirmed")
	ErrSelfDelete       = errors.New("cannot delete your own account")
	ErrUnknownAccount   = errors.New("account not found")
	ErrIDRequired       = errors.New("id is required")
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidRole      = errors.New("invalid role")
	ErrNoEditInProgress = errors.New("no password edit in progress for this account")
)

// ValidationError is a request rejected locally, before any network call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err was raised by local validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func validatePassword(password string) error {
	if password == "" {
		return invalid("password", ErrPasswordRequired)
	}
	if len([]rune(password)) < MinPasswordLength {
		return invalid("password", ErrPasswordTooShort)
	}
	return nil
}
