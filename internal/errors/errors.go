package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type returned by every public engine
// operation. A caller gets either a successful result or exactly one Error.
type Error struct {
	// Code classifies the failure; see codes.go for the full taxonomy.
	Code Code

	// Message is the human-readable description.
	Message string

	// Collection is the collection the failure occurred in, when known.
	Collection string

	// Details carries extra context (e.g. "internal_id", "dimension").
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether retrying the same call without caller
	// intervention might succeed.
	Retryable bool

	// Fatal indicates the owning collection should be marked read-only
	// until restart.
	Fatal bool
}

func (e *Error) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Collection, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, target) to match by Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New builds an Error of the given code. Retryable and Fatal are derived
// from the code; a caller that needs other values sets the fields on the
// returned Error directly (WithDetail only adds Details).
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable(code),
		Fatal:     fatalCode(code),
	}
}

// Wrap turns an arbitrary error into an Error of the given code, reusing
// its message. Returns nil if err is nil.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// In attaches a collection name to an Error, returning it for chaining.
func In(collection string, err *Error) *Error {
	if err == nil {
		return nil
	}
	err.Collection = collection
	return err
}

func InvalidInputf(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...), nil)
}

func AlreadyExistsf(format string, args ...any) *Error {
	return New(AlreadyExists, fmt.Sprintf(format, args...), nil)
}

func OutOfRangef(format string, args ...any) *Error {
	return New(OutOfRange, fmt.Sprintf(format, args...), nil)
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err is an *Error that should mark the owning
// collection read-only.
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
