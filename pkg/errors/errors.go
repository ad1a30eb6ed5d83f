// Package errors contains the error helpers used throughout gprbuild. Errors
// are wrapped with a short description of the failed operation as they travel
// up the stack, so that the final message reads like a trace, e.g.
// "sync slave: push batch: send command: connection reset".
package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the formatted message.
func New(format string, a ...interface{}) error {
	if len(a) == 0 {
		return goerrors.New(format)
	}
	return fmt.Errorf(format, a...)
}

type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext annotates `err` with a description of the operation that
// failed. It returns nil if `err` is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// RootCause returns the innermost error that isn't a context annotation.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// FriendlyError is an error whose message is meant to be shown to the user
// as is, without the context trace.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError with the formatted message.
func NewFriendlyError(template string, a ...interface{}) error {
	return FriendlyError{msg: fmt.Sprintf(template, a...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message that should be shown to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Friendly is implemented by errors that have a user facing message.
type Friendly interface {
	FriendlyMessage() string
}
