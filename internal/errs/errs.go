// Package errs provides error utilities shared across the harness:
// panic recovery, shutdown error aggregation, and transient error tagging.
package errs

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// PanicError wraps a recovered panic with its stack trace.
type PanicError struct {
	Value      any
	StackTrace string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover runs fn and converts any panic into a *PanicError.
// The error returned by fn passes through unchanged.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Value:      r,
				StackTrace: string(debug.Stack()),
			}
		}
	}()
	return fn()
}

// MultiError collects errors from multi-step operations such as shutdown,
// where every step must run even if earlier ones fail.
type MultiError struct {
	Errors []error
}

// Append adds an error to the collection. Nil errors are ignored.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil if no errors were collected, the single error if
// exactly one was, and a combined error otherwise.
func (m *MultiError) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// TransientError marks a failure as retryable. Callers can use errors.As to
// distinguish transient failures from fatal ones.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError creates a TransientError for the given operation.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
