package ws

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated rejects a connection before any state change.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden rejects an action by an authenticated user.
	ErrForbidden = errors.New("forbidden")
	// ErrStorage wraps persistence failures. The message is lost and the
	// sender must retry.
	ErrStorage = errors.New("message could not be stored")
	// ErrUpload wraps attachment upload failures. Ingestion aborts before
	// persistence.
	ErrUpload = errors.New("attachment upload failed")
)

// ValidationError reports a malformed message payload. It never reaches
// persistence or broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
