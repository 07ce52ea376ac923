package adapter

import (
	"context"
	"io"

	"github.com/leapstack-labs/dbconn/pkg/core"
)

// Unsupported supplies the default implementation of every optional Adapter
// method. Embed it and override what the engine supports.
//
// Backend is used only in error messages.
type Unsupported struct {
	Backend string
}

func (u Unsupported) notSupported(feature string) error {
	return &NotSupportedError{Feature: feature, Backend: u.Backend}
}

// ExecuteCopy reports that copy is not supported.
func (u Unsupported) ExecuteCopy(context.Context, core.CopyOptions, io.Reader, io.Writer) (*core.CopyResult, error) {
	return nil, u.notSupported("copy")
}

// PrepareStatement reports that prepared statements are not supported.
func (u Unsupported) PrepareStatement(context.Context, string) (*core.PreparedStatement, error) {
	return nil, u.notSupported("prepared statements")
}

// ExecutePrepared reports that prepared statements are not supported.
func (u Unsupported) ExecutePrepared(context.Context, *core.PreparedStatement, []core.PreparedParameter) (*core.QueryResult, error) {
	return nil, u.notSupported("prepared statements")
}

// ClosePrepared reports that prepared statements are not supported.
func (u Unsupported) ClosePrepared(context.Context, *core.PreparedStatement) error {
	return u.notSupported("prepared statements")
}

// Subscribe reports that notifications are not supported.
func (u Unsupported) Subscribe(context.Context, string, string) error {
	return u.notSupported("notifications")
}

// Unsubscribe reports that notifications are not supported.
func (u Unsupported) Unsubscribe(context.Context, string) error {
	return u.notSupported("notifications")
}

// FetchNotification reports that notifications are not supported.
func (u Unsupported) FetchNotification(context.Context) (*core.NotificationEvent, error) {
	return nil, u.notSupported("notifications")
}

// FetchStatus reports that status requests are not supported.
func (u Unsupported) FetchStatus(context.Context, core.StatusKind) (*core.StatusSnapshot, error) {
	return nil, u.notSupported("status requests")
}

// SetProgressCallback ignores the callback.
func (u Unsupported) SetProgressCallback(ProgressFunc) {}
