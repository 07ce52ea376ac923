// Package postgres provides a PostgreSQL adapter on a single native pgx
// connection. It supports COPY, LISTEN/NOTIFY, server notices and
// server-side cancel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// BackendName is the name the adapter reports.
const BackendName = "postgres"

const (
	progressEvery = 1000
	closeTimeout  = 5 * time.Second
)

var statusQueries = map[core.StatusKind]string{
	core.StatusServerInfo: `SELECT version() AS version, current_setting('server_version') AS server_version,
		pg_postmaster_start_time()::text AS started_at, current_setting('max_connections') AS max_connections`,
	core.StatusDatabaseInfo: `SELECT current_database() AS database, pg_encoding_to_char(encoding) AS encoding,
		datcollate AS collation, pg_size_pretty(pg_database_size(current_database())) AS size
		FROM pg_database WHERE datname = current_database()`,
	core.StatusStatistics: `SELECT numbackends, xact_commit, xact_rollback, blks_read, blks_hit,
		tup_returned, tup_fetched, tup_inserted, tup_updated, tup_deleted
		FROM pg_stat_database WHERE datname = current_database()`,
}

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.Unsupported
	logger *slog.Logger

	mu        sync.Mutex // serializes use of conn
	conn      *pgx.Conn
	cfg       core.EngineConfig
	stmts     map[string]*pgconn.StatementDescription
	listening map[string]string // channel -> payload filter

	live     atomic.Pointer[pgx.Conn]
	caps     atomic.Pointer[core.Capabilities]
	progress atomic.Pointer[adapter.ProgressFunc]

	cancelMu sync.Mutex
	inflight context.CancelFunc

	eventsMu sync.Mutex
	notices  []core.Message
	events   []core.NotificationEvent
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		Unsupported: adapter.Unsupported{Backend: BackendName},
		logger:      logger,
	}
}

// Connect opens the session. Notices and notifications are buffered from
// then on, and cancelling the context of a running call sends a cancel
// request to the server instead of dropping the connection.
func (a *Adapter) Connect(ctx context.Context, cfg core.EngineConfig) error {
	_ = a.Disconnect()

	pgCfg, err := pgx.ParseConfig(buildConnString(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings: %w", err)
	}
	if cfg.Timeouts.Connect > 0 {
		pgCfg.ConnectTimeout = cfg.Timeouts.Connect
	}
	for k, v := range runtimeParams(cfg) {
		pgCfg.RuntimeParams[k] = v
	}
	pgCfg.OnNotice = a.onNotice
	pgCfg.OnNotification = a.onNotification
	pgCfg.BuildContextWatcherHandler = func(pc *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.CancelRequestContextWatcherHandler{Conn: pc, DeadlineDelay: time.Second}
	}

	a.logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))
	conn, err := pgx.ConnectConfig(ctx, pgCfg)
	if err != nil {
		ce := &adapter.ConnectError{Backend: BackendName, Target: pgCfg.Host, Err: err}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "28P01" || pgErr.Code == "28000" {
				ce.Hint = "check the username and credential of the profile"
			}
		} else {
			ce.Hint = connectHint(cfg)
		}
		return ce
	}

	if cfg.Role != "" {
		if _, err := conn.PgConn().Exec(ctx, "SET ROLE "+pgx.Identifier{cfg.Role}.Sanitize()).ReadAll(); err != nil {
			_ = conn.Close(context.Background())
			return fmt.Errorf("failed to set role %s: %w", cfg.Role, err)
		}
	}

	caps := core.Capabilities{
		Cancel:             true,
		Transactions:       true,
		Paging:             true,
		Savepoints:         true,
		Explain:            true,
		PreparedStatements: true,
		CopyIn:             true,
		CopyOut:            true,
		CopyBinary:         true,
		CopyText:           true,
		Notifications:      true,
		Status:             true,
		Constraints:        true,
		Indexes:            true,
		Dependencies:       true,
		UserAdmin:          true,
		RoleAdmin:          true,
		Domains:            true,
		Sequences:          true,
		Triggers:           true,
		Procedures:         true,
		Views:              true,
		TempTables:         true,
		MultipleDatabases:  true,
		Tablespaces:        true,
		Schemas:            true,
		ImportExport:       true,
		ServerType:         BackendName,
	}
	caps.SetServerVersion(conn.PgConn().ParameterStatus("server_version"))

	a.mu.Lock()
	a.conn, a.cfg = conn, cfg
	a.stmts = make(map[string]*pgconn.StatementDescription)
	a.listening = make(map[string]string)
	a.mu.Unlock()
	a.clearEvents()
	a.caps.Store(&caps)
	a.live.Store(conn)

	a.logger.Debug("connection established", "backend", BackendName, "config", cfg, "pid", conn.PgConn().PID())
	return nil
}

// Disconnect closes the session. Calling it when not connected is a no-op.
func (a *Adapter) Disconnect() error {
	a.abortInflight()

	a.mu.Lock()
	conn := a.conn
	a.conn, a.stmts, a.listening = nil, nil, nil
	a.mu.Unlock()

	a.live.Store(nil)
	a.caps.Store(nil)
	a.clearEvents()
	if conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	a.logger.Debug("closing database connection", "backend", BackendName)
	return conn.Close(ctx)
}

// IsConnected reports whether the session is open.
func (a *Adapter) IsConnected() bool {
	conn := a.live.Load()
	return conn != nil && !conn.IsClosed()
}

// Capabilities returns the snapshot taken on connect, or the zero value.
func (a *Adapter) Capabilities() core.Capabilities {
	if c := a.caps.Load(); c != nil {
		return *c
	}
	return core.Capabilities{}
}

// BackendName returns "postgres".
func (a *Adapter) BackendName() string {
	return BackendName
}

// SetProgressCallback installs fn; nil removes it.
func (a *Adapter) SetProgressCallback(fn adapter.ProgressFunc) {
	if fn == nil {
		a.progress.Store(nil)
		return
	}
	a.progress.Store(&fn)
}

func (a *Adapter) reportProgress(done, total uint64) {
	if fn := a.progress.Load(); fn != nil {
		(*fn)(done, total)
	}
}

// Cancel asks the server to abort the running statement. With nothing in
// flight it does nothing.
func (a *Adapter) Cancel() error {
	if !a.IsConnected() {
		return adapter.ErrNotConnected
	}
	if a.abortInflight() {
		a.logger.Debug("cancel requested", "backend", BackendName)
	}
	return nil
}

func (a *Adapter) abortInflight() bool {
	a.cancelMu.Lock()
	cancel := a.inflight
	a.cancelMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// lockConn takes mu and returns the open connection, or unlocks and fails.
func (a *Adapter) lockConn() (*pgconn.PgConn, error) {
	a.mu.Lock()
	if a.conn == nil || a.conn.IsClosed() {
		a.mu.Unlock()
		return nil, adapter.ErrNotConnected
	}
	return a.conn.PgConn(), nil
}

// enter registers ctx as the in-flight call. done must be called when the call
// returns.
func (a *Adapter) enter(ctx context.Context) (context.Context, func()) {
	timeoutCancel := context.CancelFunc(func() {})
	if t := a.cfg.Timeouts.Query; t > 0 {
		ctx, timeoutCancel = context.WithTimeout(ctx, t)
	}
	ctx, cancel := context.WithCancel(ctx)

	a.cancelMu.Lock()
	a.inflight = cancel
	a.cancelMu.Unlock()

	return ctx, func() {
		a.cancelMu.Lock()
		a.inflight = nil
		a.cancelMu.Unlock()
		cancel()
		timeoutCancel()
	}
}

// ExecuteQuery runs sqlStr with the simple query protocol. With several
// statements, the last one that returned rows (or else the last one) forms
// the result.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlStr string, opts core.QueryOptions) (*core.QueryResult, error) {
	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return a.queryLocked(ctx, pg, sqlStr, opts.MaxRows)
}

func (a *Adapter) queryLocked(ctx context.Context, pg *pgconn.PgConn, sqlStr string, maxRows int) (*core.QueryResult, error) {
	ctx, done := a.enter(ctx)
	defer done()

	a.takeNotices()
	start := time.Now()
	results, err := pg.Exec(ctx, sqlStr).ReadAll()
	notices := a.takeNotices()
	if err != nil {
		return nil, err
	}

	var picked *pgconn.Result
	for _, r := range results {
		if picked == nil || len(r.FieldDescriptions) > 0 || len(picked.FieldDescriptions) == 0 {
			picked = r
		}
	}
	res := &core.QueryResult{}
	if picked != nil {
		if res, err = a.buildResult(picked.FieldDescriptions, picked.Rows, picked.CommandTag, maxRows); err != nil {
			return nil, err
		}
	}
	res.Messages = notices
	res.Stats.Elapsed = time.Since(start)
	return res, nil
}

func (a *Adapter) buildResult(fields []pgconn.FieldDescription, rows [][][]byte, tag pgconn.CommandTag, maxRows int) (*core.QueryResult, error) {
	tm := a.typeMap()
	res := &core.QueryResult{
		Columns:      make([]core.Column, len(fields)),
		RowsAffected: tag.RowsAffected(),
		CommandTag:   tag.String(),
	}
	for i, f := range fields {
		res.Columns[i] = core.Column{Name: f.Name, Type: typeName(tm, f.DataTypeOID)}
	}

	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		res.Stats.Truncated = true
	}
	total := uint64(len(rows))
	res.Rows = make([][]core.Value, 0, len(rows))
	for n, raw := range rows {
		row := make([]core.Value, len(raw))
		for i, v := range raw {
			cell, err := decodeCell(tm, fields[i], v)
			if err != nil {
				return nil, fmt.Errorf("failed to decode column %s: %w", fields[i].Name, err)
			}
			row[i] = cell
		}
		res.Rows = append(res.Rows, row)
		if (n+1)%progressEvery == 0 {
			a.reportProgress(uint64(n+1), total)
		}
	}
	res.Stats.RowsReturned = int64(len(res.Rows))
	return res, nil
}

func (a *Adapter) typeMap() *pgtype.Map {
	if a.conn != nil {
		return a.conn.TypeMap()
	}
	return pgtype.NewMap()
}

func typeName(tm *pgtype.Map, oid uint32) string {
	if t, ok := tm.TypeForOID(oid); ok {
		return adapter.TypeTag(t.Name)
	}
	return adapter.TypeTag("")
}

// decodeCell converts one wire value. bytea carries raw bytes; every other
// type keeps the server's text form.
func decodeCell(tm *pgtype.Map, f pgconn.FieldDescription, v []byte) (core.Value, error) {
	if v == nil {
		return core.NullValue(), nil
	}
	if f.DataTypeOID == pgtype.ByteaOID {
		var b []byte
		if err := tm.Scan(f.DataTypeOID, f.Format, v, &b); err != nil {
			return core.Value{}, err
		}
		return core.BinaryValue(b), nil
	}
	if f.Format == pgtype.BinaryFormatCode {
		return core.BinaryValue(append([]byte(nil), v...)), nil
	}
	return core.TextValue(string(v)), nil
}

// BeginTransaction opens a transaction.
func (a *Adapter) BeginTransaction(ctx context.Context) error {
	pg, err := a.lockConn()
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	if pg.TxStatus() != 'I' {
		return adapter.ErrTransactionActive
	}
	if _, err := pg.Exec(ctx, "BEGIN").ReadAll(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return nil
}

// Commit commits the open transaction. Without one it does nothing. A failed
// transaction is rolled back by the server and reported as an error.
func (a *Adapter) Commit(ctx context.Context) error {
	pg, err := a.lockConn()
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	if pg.TxStatus() == 'I' {
		return nil
	}
	results, err := pg.Exec(ctx, "COMMIT").ReadAll()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if len(results) > 0 && results[0].CommandTag.String() == "ROLLBACK" {
		return errors.New("transaction was aborted and has been rolled back")
	}
	return nil
}

// Rollback rolls back the open transaction. Without one it does nothing.
func (a *Adapter) Rollback(ctx context.Context) error {
	pg, err := a.lockConn()
	if err != nil {
		return err
	}
	defer a.mu.Unlock()
	if pg.TxStatus() == 'I' {
		return nil
	}
	if _, err := pg.Exec(context.WithoutCancel(ctx), "ROLLBACK").ReadAll(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
