package orchestrator

import (
	"errors"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
)

var (
	// ErrNotConnected is returned by every operation that needs a connection.
	ErrNotConnected = adapter.ErrNotConnected

	// ErrCopyRequiresSQL is returned by ExecuteCopy without a statement.
	ErrCopyRequiresSQL = errors.New("COPY requires SQL")
)

// CredentialError is a failed password lookup. Its message is the store's.
type CredentialError struct {
	Ref string
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err == nil || e.Err.Error() == "" {
		return "credential lookup failed"
	}
	return e.Err.Error()
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
