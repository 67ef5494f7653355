package storage

import "fmt"

// ErrorType classifies storage failures. It implements error so callers can
// write errors.Is(err, storage.ErrNotFound).
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrConflict      ErrorType = "conflict"
)

func (t ErrorType) Error() string {
	return string(t)
}

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's Type so that errors.Is works against ErrorType values.
func (e *Error) Is(target error) bool {
	t, ok := target.(ErrorType)
	return ok && t == e.Type
}

// NotFound builds a not_found error for the given kind and id.
func NotFound(kind, id string) *Error {
	return &Error{Type: ErrNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// AlreadyExists builds an already_exists error.
func AlreadyExists(format string, args ...any) *Error {
	return &Error{Type: ErrAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an invalid_input error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Type: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}
