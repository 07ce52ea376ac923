// Package adapter defines the contract every database engine adapter implements
// and the shared pieces adapters are built from.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves with the registry from their init() functions. Optional
// operations have "not supported" defaults in Unsupported, so a minimal adapter
// only implements what its engine natively offers.
package adapter

import (
	"context"
	"io"

	"github.com/leapstack-labs/dbconn/pkg/core"
)

// Adapter defines the interface that all database adapters must implement.
//
// Every method must be safe to call whether or not the adapter is connected;
// calls that need a connection fail with ErrNotConnected. Implementations never
// panic across this boundary.
type Adapter interface {
	// Connect establishes the engine connection and populates Capabilities.
	// On failure the adapter is left not connected with no handles leaked.
	Connect(ctx context.Context, cfg core.EngineConfig) error

	// Disconnect releases the connection. It is idempotent.
	Disconnect() error

	// IsConnected is cheap and side-effect free.
	IsConnected() bool

	// ExecuteQuery runs one statement and returns the complete result.
	// Streaming in opts is a hint; the returned result is always complete.
	ExecuteQuery(ctx context.Context, sql string, opts core.QueryOptions) (*core.QueryResult, error)

	// ExecuteCopy runs a bulk import/export. in feeds COPY ... FROM STDIN,
	// out receives COPY ... TO STDOUT.
	ExecuteCopy(ctx context.Context, opts core.CopyOptions, in io.Reader, out io.Writer) (*core.CopyResult, error)

	PrepareStatement(ctx context.Context, sql string) (*core.PreparedStatement, error)
	ExecutePrepared(ctx context.Context, stmt *core.PreparedStatement, params []core.PreparedParameter) (*core.QueryResult, error)
	ClosePrepared(ctx context.Context, stmt *core.PreparedStatement) error

	// Subscribe starts listening on channel. filter is engine specific and may be empty.
	Subscribe(ctx context.Context, channel, filter string) error
	Unsubscribe(ctx context.Context, channel string) error

	// FetchNotification returns the next pending notification, or (nil, nil)
	// when none arrived.
	FetchNotification(ctx context.Context) (*core.NotificationEvent, error)

	FetchStatus(ctx context.Context, kind core.StatusKind) (*core.StatusSnapshot, error)

	// SetProgressCallback installs a hook called while long results or copies
	// are transferred. total is 0 when unknown.
	SetProgressCallback(fn ProgressFunc)

	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Cancel asks the engine to abort the in-flight call. It must not block
	// behind that call. Adapters without cancel support always return an error.
	Cancel() error

	Capabilities() core.Capabilities
	BackendName() string
}

// ProgressFunc reports transfer progress.
type ProgressFunc func(done, total uint64)
