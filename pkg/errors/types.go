package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// TransportError marks a failure of the channel to a remote peer, such as a
// dropped connection. Transport errors end the affected session only, unlike
// other errors raised while synchronizing, which are fatal.
type TransportError struct {
	Err error
}

// NewTransportError wraps `err` as a TransportError. It returns nil if `err`
// is nil.
func NewTransportError(err error) error {
	if err == nil {
		return nil
	}
	return TransportError{Err: err}
}

func (err TransportError) Error() string {
	return fmt.Sprintf("transport: %s", err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

// IsTransportError returns whether a TransportError appears anywhere in the
// chain of `err`.
func IsTransportError(err error) bool {
	var transportErr TransportError
	return As(err, &transportErr)
}
