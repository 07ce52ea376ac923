// Package duckdb provides an in-process DuckDB adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// BackendName is the name the adapter reports.
const BackendName = "duckdb"

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	a := &Adapter{BaseSQLAdapter: adapter.NewBaseSQLAdapter(BackendName, logger)}
	a.StatusQueries = map[core.StatusKind]string{
		core.StatusServerInfo:   "SELECT version() AS version, current_setting('threads') AS threads, current_setting('memory_limit') AS memory_limit",
		core.StatusDatabaseInfo: "SELECT database_name, coalesce(path, ':memory:') FROM duckdb_databases() WHERE NOT internal",
		core.StatusStatistics:   "SELECT database_size, block_size, total_blocks, used_blocks, memory_usage FROM pragma_database_size()",
	}
	return a
}

// Connect opens the database named by cfg.Database.
// An empty name or ":memory:" opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.EngineConfig) error {
	if a.IsConnected() {
		_ = a.Disconnect()
	}
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := params.dsn(cfg.Database)
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := a.Open(ctx, db, cfg); err != nil {
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	// Statements may carry secret material, so errors name only the index.
	for i, stmt := range params.setupStatements() {
		if _, err := a.ExecuteQuery(ctx, stmt, core.QueryOptions{}); err != nil {
			_ = a.Disconnect()
			return fmt.Errorf("failed to apply duckdb params (statement %d): %w", i+1, err)
		}
	}

	version, err := a.QueryValue(ctx, "SELECT version()")
	if err != nil {
		_ = a.Disconnect()
		return err
	}
	caps := core.Capabilities{
		Cancel:             true,
		Transactions:       true,
		Paging:             true,
		PreparedStatements: true,
		Status:             true,
		Explain:            true,
		Views:              true,
		Sequences:          true,
		TempTables:         true,
		Schemas:            true,
		MultipleDatabases:  true,
		ImportExport:       true,
		ServerType:         BackendName,
	}
	caps.SetServerVersion(version)
	a.SetCapabilities(caps)

	a.Logger.Debug("duckdb session ready",
		slog.String("path", path),
		slog.Any("extensions", params.Extensions),
		slog.Int("attached", len(params.Attach)),
		slog.Int("secrets", len(params.Secrets)),
		slog.Any("settings", slices.Sorted(maps.Keys(params.Settings))))
	return nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
