// Package sqlite provides an in-process SQLite adapter backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// BackendName is the name the adapter reports.
const BackendName = "sqlite"

// Params holds SQLite-specific configuration decoded from EngineConfig.Params.
type Params struct {
	// Pragmas are applied with PRAGMA name = value after connecting.
	Pragmas map[string]string `mapstructure:"pragmas"`
	// ReadOnly opens a file database in read-only mode.
	ReadOnly bool `mapstructure:"read_only"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid sqlite params: %w", err)
	}
	return p, nil
}

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	a := &Adapter{BaseSQLAdapter: adapter.NewBaseSQLAdapter(BackendName, logger)}
	a.StatusQueries = map[core.StatusKind]string{
		core.StatusServerInfo:   "SELECT sqlite_version() AS version, sqlite_source_id() AS source_id",
		core.StatusDatabaseInfo: "SELECT name, file FROM pragma_database_list",
		core.StatusStatistics: `SELECT p.page_count, s.page_size, f.freelist_count
			FROM pragma_page_count() p, pragma_page_size() s, pragma_freelist_count() f`,
	}
	return a
}

// dsn builds the driver DSN for path.
func dsn(path string, p *Params) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	if !p.ReadOnly {
		return path
	}
	q := url.Values{"mode": {"ro"}}
	return "file:" + strings.TrimPrefix(path, "file:") + "?" + q.Encode()
}

// Connect opens the database file named by cfg.Database, or an in-memory
// database when it is empty.
func (a *Adapter) Connect(ctx context.Context, cfg core.EngineConfig) error {
	if a.IsConnected() {
		_ = a.Disconnect()
	}
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dsn(cfg.Database, params))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := a.Open(ctx, db, cfg); err != nil {
		return &adapter.ConnectError{Backend: BackendName, Target: cfg.Database, Err: err}
	}

	for _, name := range slices.Sorted(maps.Keys(params.Pragmas)) {
		stmt := fmt.Sprintf("PRAGMA %s = %s", name, params.Pragmas[name])
		if _, err := a.ExecuteQuery(ctx, stmt, core.QueryOptions{}); err != nil {
			_ = a.Disconnect()
			return fmt.Errorf("failed to apply pragma %s: %w", name, err)
		}
	}

	version, err := a.QueryValue(ctx, "SELECT sqlite_version()")
	if err != nil {
		_ = a.Disconnect()
		return err
	}
	caps := core.Capabilities{
		Cancel:             true,
		Transactions:       true,
		Paging:             true,
		Savepoints:         true,
		Explain:            true,
		PreparedStatements: true,
		Status:             true,
		Triggers:           true,
		Views:              true,
		TempTables:         true,
		ServerType:         BackendName,
	}
	caps.SetServerVersion(version)
	a.SetCapabilities(caps)
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
