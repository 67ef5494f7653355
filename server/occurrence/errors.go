package occurrence

import (
	"errors"
	"fmt"

	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrImmutableField    = errors.New("immutable field")
	ErrAmbiguousMonthDay = recurrence.ErrAmbiguousMonthDay
	// ErrTooManyCandidates is returned when one pattern expands to more
	// candidates in the query window than the engine allows.
	ErrTooManyCandidates = recurrence.ErrTooManyCandidates
	ErrNotFound          = errors.New("not found")
	// ErrIndeterminateEntry is returned when an entry's identity fields do
	// not resolve to a pattern, an instance or a virtualized occurrence.
	ErrIndeterminateEntry   = errors.New("indeterminate entry type")
	ErrInvalidRestoreTarget = errors.New("invalid restore target")
)

// ValidationError reports malformed input. It is always returned before any
// persistence call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ImmutableFieldError reports an update that changes a field fixed at creation.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s cannot be changed after creation", e.Field)
}

func (e *ImmutableFieldError) Is(target error) bool { return target == ErrImmutableField }

// NotFoundError reports a pattern, instance or modification missing from the
// store. It unwraps to the storage error that caused it.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// RestoreError reports a restore on an entry that carries no override.
type RestoreError struct {
	Reason string
}

func (e *RestoreError) Error() string { return e.Reason }

func (e *RestoreError) Is(target error) bool { return target == ErrInvalidRestoreTarget }

func indeterminate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIndeterminateEntry, fmt.Sprintf(format, args...))
}

// notFound converts a storage not-found error into a *NotFoundError and
// passes every other error through.
func notFound(err error, kind, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id, Err: err}
	}
	return err
}

// fromRecurrence maps rule, zone and strategy errors onto validation errors.
// Ambiguous month days keep their own type.
func fromRecurrence(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrAmbiguousMonthDay):
		return err
	case errors.Is(err, recurrence.ErrInvalidRule):
		return &ValidationError{Field: "rrule", Reason: err.Error(), Err: err}
	case errors.Is(err, recurrence.ErrInvalidZone):
		return &ValidationError{Field: "timeZone", Reason: err.Error(), Err: err}
	case errors.Is(err, recurrence.ErrInvalidStrategy):
		return &ValidationError{Field: "monthDayStrategy", Reason: err.Error(), Err: err}
	}
	return err
}
