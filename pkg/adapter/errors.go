package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrNotSupported is matched by every NotSupportedError.
	ErrNotSupported = errors.New("not supported")

	// ErrTransactionActive is returned by BeginTransaction when one is already open.
	ErrTransactionActive = errors.New("transaction already in progress")
)

// NotSupportedError names an optional feature the adapter does not implement.
type NotSupportedError struct {
	Feature string
	Backend string
}

func (e *NotSupportedError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s not supported", e.Feature)
	}
	return fmt.Sprintf("%s not supported by %s backend", e.Feature, e.Backend)
}

// Is makes errors.Is(err, ErrNotSupported) true.
func (e *NotSupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

// ConnectError wraps a connect failure with an optional operator hint.
type ConnectError struct {
	Backend string
	Target  string
	Hint    string
	Err     error
}

func (e *ConnectError) Error() string {
	msg := fmt.Sprintf("%s: connect to %s failed: %v", e.Backend, e.Target, e.Err)
	if e.Hint != "" {
		msg += "\nHint: " + e.Hint
	}
	return msg
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
