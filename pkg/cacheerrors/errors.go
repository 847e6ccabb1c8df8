// Package cacheerrors provides the sentinel-error taxonomy and wrapping
// helpers shared by every cache-cluster component: INVALID_COMMAND,
// NOT_FOUND, TIMEOUT, ERROR, and LOCK_CONFLICT, each with its own
// formatted constructor and a common Wrap/As/Is surface.
package cacheerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Command-API responses are derived from these via Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrUnavailable      = errors.New("service unavailable")
	ErrTimeout          = errors.New("operation timed out")
	ErrNotSupported     = errors.New("not supported")
	ErrCanceled         = errors.New("operation canceled")
	ErrLockConflict     = errors.New("lock conflict")
	ErrRegistryShutdown = errors.New("lock registry shut down")
	ErrMaxRenewals      = errors.New("max renewals exceeded")
)

// New creates a new error with the given message.
func New(message string) error { return errors.New(message) }

// Newf creates a new error with a formatted message.
func Newf(format string, args ...interface{}) error { return fmt.Errorf(format, args...) }

// Wrap wraps err with additional context using %w. Returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("%s: %w", format, err)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Wrapf is an alias for Wrap.
func Wrapf(err error, format string, args ...interface{}) error { return Wrap(err, format, args...) }

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree matching target's type.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Unwrap returns the result of calling Unwrap on err, if it implements it.
func Unwrap(err error) error { return errors.Unwrap(err) }

func formatError(base error, format string, args ...interface{}) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: %w", format, base)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), base)
}

func NotFoundf(format string, args ...interface{}) error     { return formatError(ErrNotFound, format, args...) }
func AlreadyExistsf(format string, args ...interface{}) error {
	return formatError(ErrAlreadyExists, format, args...)
}
func InvalidInputf(format string, args ...interface{}) error {
	return formatError(ErrInvalidInput, format, args...)
}
func Internalf(format string, args ...interface{}) error { return formatError(ErrInternal, format, args...) }
func Unavailablef(format string, args ...interface{}) error {
	return formatError(ErrUnavailable, format, args...)
}
func Timeoutf(format string, args ...interface{}) error { return formatError(ErrTimeout, format, args...) }
func NotSupportedf(format string, args ...interface{}) error {
	return formatError(ErrNotSupported, format, args...)
}
func Canceledf(format string, args ...interface{}) error { return formatError(ErrCanceled, format, args...) }
func LockConflictf(format string, args ...interface{}) error {
	return formatError(ErrLockConflict, format, args...)
}
func MaxRenewalsf(format string, args ...interface{}) error {
	return formatError(ErrMaxRenewals, format, args...)
}

// Multiple combines errors into one. Nil entries are dropped; a single
// remaining error is returned unwrapped.
func Multiple(errs ...error) error {
	valid := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			valid = append(valid, err)
		}
	}
	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0]
	default:
		return &multiError{errors: valid}
	}
}

type multiError struct{ errors []error }

func (me *multiError) Error() string {
	if len(me.errors) == 0 {
		return ""
	}
	if len(me.errors) == 1 {
		return me.errors[0].Error()
	}
	messages := make([]string, len(me.errors))
	for i, err := range me.errors {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

func (me *multiError) Unwrap() error {
	if len(me.errors) == 0 {
		return nil
	}
	return me.errors[0]
}

func (me *multiError) Errors() []error { return me.errors }
