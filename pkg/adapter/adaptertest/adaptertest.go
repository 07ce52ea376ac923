// Package adaptertest checks that an adapter honors the adapter contract.
// Adapter packages call Run from their tests with a harness that knows how to
// build and configure the adapter.
package adaptertest

import (
	"context"
	"testing"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness describes the adapter under test.
type Harness struct {
	// New returns a fresh, unconnected adapter.
	New func(t *testing.T) adapter.Adapter
	// Config returns a config Connect succeeds with.
	Config func(t *testing.T) core.EngineConfig
	// Query succeeds once connected.
	Query string
	// BadQuery fails once connected. Defaults to a statement no engine accepts.
	BadQuery string
}

// Run runs the conformance checks as subtests.
func Run(t *testing.T, h Harness) {
	t.Helper()
	if h.BadQuery == "" {
		h.BadQuery = "THIS IS NOT A STATEMENT"
	}

	t.Run("not connected", func(t *testing.T) { testNotConnected(t, h) })
	t.Run("connect and disconnect", func(t *testing.T) { testConnectDisconnect(t, h) })
	t.Run("capabilities match behavior", func(t *testing.T) { testCapabilities(t, h) })
	t.Run("full result or error", func(t *testing.T) { testResultOrError(t, h) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, h) })
}

func connect(t *testing.T, h Harness) adapter.Adapter {
	t.Helper()
	a := h.New(t)
	require.NoError(t, a.Connect(context.Background(), h.Config(t)), "Connect failed")
	t.Cleanup(func() { _ = a.Disconnect() })
	return a
}

func testNotConnected(t *testing.T, h Harness) {
	ctx := context.Background()
	a := h.New(t)

	assert.False(t, a.IsConnected())
	assert.True(t, a.Capabilities().IsZero(), "capabilities before connect must be the zero value")

	res, err := a.ExecuteQuery(ctx, h.Query, core.QueryOptions{})
	assert.Error(t, err, "query before connect must fail")
	assert.Nil(t, res)
	assert.Error(t, a.BeginTransaction(ctx), "begin before connect must fail")

	assert.NoError(t, a.Disconnect())
	assert.NoError(t, a.Disconnect())
}

func testConnectDisconnect(t *testing.T, h Harness) {
	ctx := context.Background()
	a := h.New(t)

	require.NoError(t, a.Connect(ctx, h.Config(t)))
	assert.True(t, a.IsConnected())
	assert.False(t, a.Capabilities().IsZero(), "connect must populate capabilities")
	assert.NotEmpty(t, a.BackendName())

	assert.NoError(t, a.Disconnect())
	assert.NoError(t, a.Disconnect(), "Disconnect must be idempotent")
	assert.False(t, a.IsConnected())
	assert.True(t, a.Capabilities().IsZero())

	_, err := a.ExecuteQuery(ctx, h.Query, core.QueryOptions{})
	assert.Error(t, err, "query after disconnect must fail")
}

func testCapabilities(t *testing.T, h Harness) {
	ctx := context.Background()
	a := connect(t, h)
	caps := a.Capabilities()

	if !caps.Cancel {
		assert.Error(t, a.Cancel(), "Cancel must fail when not advertised")
	} else {
		assert.NoError(t, a.Cancel(), "Cancel with nothing in flight must not fail")
	}

	for _, dir := range []core.CopyDirection{core.CopyIn, core.CopyOut, core.CopyBoth} {
		if caps.SupportsCopy(dir) {
			continue
		}
		_, err := a.ExecuteCopy(ctx, core.CopyOptions{SQL: "COPY t FROM STDIN", Direction: dir}, nil, nil)
		assert.ErrorIs(t, err, adapter.ErrNotSupported, "copy %s must be unsupported", dir)
	}

	if !caps.PreparedStatements {
		_, err := a.PrepareStatement(ctx, h.Query)
		assert.ErrorIs(t, err, adapter.ErrNotSupported)
	}
	if !caps.Notifications {
		assert.ErrorIs(t, a.Subscribe(ctx, "events", ""), adapter.ErrNotSupported)
		_, err := a.FetchNotification(ctx)
		assert.ErrorIs(t, err, adapter.ErrNotSupported)
	}
	if !caps.Status {
		_, err := a.FetchStatus(ctx, core.StatusServerInfo)
		assert.ErrorIs(t, err, adapter.ErrNotSupported)
	}
}

func testResultOrError(t *testing.T, h Harness) {
	ctx := context.Background()
	a := connect(t, h)

	res, err := a.ExecuteQuery(ctx, h.Query, core.QueryOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	for i, row := range res.Rows {
		assert.Len(t, row, len(res.Columns), "row %d width must match columns", i)
	}

	res, err = a.ExecuteQuery(ctx, h.BadQuery, core.QueryOptions{})
	assert.Error(t, err)
	assert.Nil(t, res, "a failed query must not return a partial result")
	assert.True(t, a.IsConnected(), "a failed query must not drop the connection")
}

func testTransactions(t *testing.T, h Harness) {
	ctx := context.Background()
	a := connect(t, h)
	if !a.Capabilities().Transactions {
		t.Skip("transactions not advertised")
	}

	require.NoError(t, a.BeginTransaction(ctx))
	_, err := a.ExecuteQuery(ctx, h.Query, core.QueryOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Commit(ctx))

	require.NoError(t, a.BeginTransaction(ctx))
	require.NoError(t, a.Rollback(ctx))
}
