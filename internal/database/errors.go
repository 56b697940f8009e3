package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a route or identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageConflict is a transient uniqueness or serialization conflict
	// reported by the storage layer. Callers may retry.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrStorageUnavailable means the backing store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRouteSecret is returned when an enrollment presents a wrong route secret.
	ErrRouteSecret = errors.New("invalid route secret")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
