package solar

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrNotFound is returned by stores when no matching row exists.
var ErrNotFound = errors.New("no solar data")

// AuthError means the login exchange with the solar portal failed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("solar portal login failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx status or malformed body from an upstream source.
type UpstreamError struct {
	Source     string
	StatusCode int
	// Unauthorized is set when the upstream rejected the credential.
	Unauthorized bool
	Err          error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StoreError wraps a persistence or query failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ForwardError is a failed push to a downstream sink. It is logged, never escalated.
type ForwardError struct {
	Sink string
	Err  error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Sink, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// RuntimeFault is a panic recovered at a cycle or task boundary.
type RuntimeFault struct {
	Value interface{}
	Stack []byte
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("runtime fault: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *RuntimeFault) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsUnauthorized reports whether err carries an upstream credential rejection.
func IsUnauthorized(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.Unauthorized
}

// Guard runs fn and converts a panic into a *RuntimeFault error.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeFault{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
