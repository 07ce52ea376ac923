// Package firebird provides a Firebird adapter over the pure-Go
// nakagami/firebirdsql driver.
package firebird

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"

	_ "github.com/nakagami/firebirdsql" // firebird driver
)

// BackendName is the name the adapter reports.
const BackendName = "firebird"

// driverOptions are EngineConfig.Options passed through as DSN parameters.
var driverOptions = []string{"auth_plugin_name", "wire_crypt", "column_name_to_lower", "timezone", "charset"}

// Adapter implements the adapter.Adapter interface for Firebird.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new Firebird adapter instance.
func New(logger *slog.Logger) *Adapter {
	a := &Adapter{BaseSQLAdapter: adapter.NewBaseSQLAdapter(BackendName, logger)}
	a.StatusQueries = map[core.StatusKind]string{
		core.StatusServerInfo: `SELECT rdb$get_context('SYSTEM', 'ENGINE_VERSION') AS engine_version,
			a.mon$server_pid AS server_pid, a.mon$remote_protocol AS remote_protocol
			FROM mon$attachments a WHERE a.mon$attachment_id = CURRENT_CONNECTION`,
		core.StatusDatabaseInfo: `SELECT mon$database_name AS database_name, mon$page_size AS page_size,
			mon$ods_major AS ods_major, mon$ods_minor AS ods_minor, mon$sql_dialect AS sql_dialect,
			mon$creation_date AS creation_date FROM mon$database`,
		core.StatusStatistics: `SELECT mon$page_reads AS page_reads, mon$page_writes AS page_writes,
			mon$page_fetches AS page_fetches, mon$page_marks AS page_marks
			FROM mon$io_stats WHERE mon$stat_group = 0`,
	}
	return a
}

// buildDSN returns user:password@host:port/database?params. The database is
// a server-side path or alias.
func buildDSN(cfg core.EngineConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = core.EngineFirebird.DefaultPort()
	}

	q := url.Values{}
	if cfg.Role != "" {
		q.Set("role", cfg.Role)
	}
	for _, key := range driverOptions {
		if v := cfg.Option(key, ""); v != "" {
			q.Set(key, v)
		}
	}

	u := url.URL{
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	// Drop the leading "//" of the scheme-less URL.
	return u.String()[2:]
}

// Connect opens a session and identifies the server.
func (a *Adapter) Connect(ctx context.Context, cfg core.EngineConfig) error {
	if a.IsConnected() {
		_ = a.Disconnect()
	}
	db, err := sql.Open("firebirdsql", buildDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open firebird connection: %w", err)
	}
	a.Logger.Debug("connecting to firebird", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	if err := a.Open(ctx, db, cfg); err != nil {
		return &adapter.ConnectError{
			Backend: BackendName,
			Target:  net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Hint:    "is the Firebird server running and is the database path or alias correct?",
			Err:     err,
		}
	}

	version, err := a.QueryValue(ctx, "SELECT rdb$get_context('SYSTEM', 'ENGINE_VERSION') FROM rdb$database")
	if err != nil {
		_ = a.Disconnect()
		return err
	}
	caps := core.Capabilities{
		Transactions:       true,
		Paging:             true,
		Savepoints:         true,
		PreparedStatements: true,
		Status:             true,
		Domains:            true,
		Sequences:          true,
		Triggers:           true,
		Procedures:         true,
		Views:              true,
		TempTables:         true,
		ServerType:         BackendName,
	}
	caps.SetServerVersion(version)
	a.SetCapabilities(caps)
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
