package engine

import (
	"errors"
	"fmt"

	"luggo/internal/engine/auth"
	"luggo/internal/repo"
)

var (
	// ErrInvalidState means the operation is not permitted from the entity's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict means the write would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}

// lookup rewrites a bare repo.ErrNotFound into one naming the missing entity.
func lookup(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

// IsCallerError reports whether err is one of the caller-facing error kinds.
func IsCallerError(err error) bool {
	var fe auth.ForbiddenError
	var ve ValidationError
	return errors.As(err, &fe) || errors.As(err, &ve) ||
		errors.Is(err, repo.ErrNotFound) || errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict) || errors.Is(err, repo.ErrConflict)
}
