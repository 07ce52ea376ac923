package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// progressEvery is how many rows pass between progress callbacks.
const progressEvery = 1000

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed it in concrete adapter implementations, call Open from Connect and
// SetCapabilities once the engine is identified.
//
// A single *sql.Conn is pinned from DB so session state and transactions stay
// on one engine session between calls.
type BaseSQLAdapter struct {
	Unsupported

	DB     *sql.DB
	Cfg    core.EngineConfig
	Logger *slog.Logger

	// StatusQueries maps a status kind to a query. Two-column results are read
	// as key/value rows, anything else as column name/value of the first row.
	StatusQueries map[core.StatusKind]string

	mu    sync.Mutex // guards conn, tx, stmts
	conn  *sql.Conn
	tx    *sql.Tx
	stmts map[string]*sql.Stmt

	connected atomic.Bool
	caps      atomic.Pointer[core.Capabilities]
	progress  atomic.Pointer[ProgressFunc]

	cancelMu sync.Mutex
	inflight context.CancelFunc
}

// NewBaseSQLAdapter returns a base for the named backend.
func NewBaseSQLAdapter(backend string, logger *slog.Logger) BaseSQLAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return BaseSQLAdapter{Unsupported: Unsupported{Backend: backend}, Logger: logger}
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Open pins a connection from db and verifies it. On failure db is closed and
// the adapter stays disconnected.
func (b *BaseSQLAdapter) Open(ctx context.Context, db *sql.DB, cfg core.EngineConfig) error {
	if cfg.Timeouts.Connect > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Connect)
		defer cancel()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return err
	}

	b.mu.Lock()
	b.DB, b.conn, b.tx, b.Cfg = db, conn, nil, cfg
	b.stmts = make(map[string]*sql.Stmt)
	b.mu.Unlock()
	b.connected.Store(true)

	b.logger().Debug("connection established", "backend", b.Backend, "config", cfg)
	return nil
}

// Disconnect rolls back any open transaction and closes the connection.
// Calling it when not connected is a no-op.
func (b *BaseSQLAdapter) Disconnect() error {
	b.mu.Lock()
	db, conn, tx, stmts := b.DB, b.conn, b.tx, b.stmts
	b.DB, b.conn, b.tx, b.stmts = nil, nil, nil, nil
	b.mu.Unlock()

	b.connected.Store(false)
	b.caps.Store(nil)
	if db == nil {
		return nil
	}

	b.cancelMu.Lock()
	if b.inflight != nil {
		b.inflight()
	}
	b.cancelMu.Unlock()
	b.logger().Debug("closing database connection", "backend", b.Backend)

	if tx != nil {
		_ = tx.Rollback()
	}
	for _, s := range stmts {
		_ = s.Close()
	}
	var errs []error
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	if err := db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.connected.Load()
}

// InTransaction reports whether a transaction is open on the pinned connection.
func (b *BaseSQLAdapter) InTransaction() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx != nil
}

// SetCapabilities records the capability snapshot returned by Capabilities.
func (b *BaseSQLAdapter) SetCapabilities(caps core.Capabilities) {
	b.caps.Store(&caps)
}

// Capabilities returns the snapshot set on connect, or the zero value.
func (b *BaseSQLAdapter) Capabilities() core.Capabilities {
	if c := b.caps.Load(); c != nil {
		return *c
	}
	return core.Capabilities{}
}

// BackendName returns the backend name.
func (b *BaseSQLAdapter) BackendName() string {
	return b.Backend
}

// SetProgressCallback installs fn; nil removes it.
func (b *BaseSQLAdapter) SetProgressCallback(fn ProgressFunc) {
	if fn == nil {
		b.progress.Store(nil)
		return
	}
	b.progress.Store(&fn)
}

// Progress reports progress to the installed callback, if any.
func (b *BaseSQLAdapter) Progress(done, total uint64) {
	if fn := b.progress.Load(); fn != nil {
		(*fn)(done, total)
	}
}

// Cancel aborts the in-flight call by cancelling its context. With nothing in
// flight it does nothing. Adapters that did not advertise cancel always fail.
func (b *BaseSQLAdapter) Cancel() error {
	if !b.Capabilities().Cancel {
		return &NotSupportedError{Feature: "cancel", Backend: b.Backend}
	}
	b.cancelMu.Lock()
	cancel := b.inflight
	b.cancelMu.Unlock()
	if cancel != nil {
		b.logger().Debug("cancelling in-flight call", "backend", b.Backend)
		cancel()
	}
	return nil
}

// runner is what a statement runs against: the pinned conn or the open tx.
type runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// enter returns the runner for the next call and a context Cancel can abort.
// done must be called when the call returns.
func (b *BaseSQLAdapter) enter(ctx context.Context) (context.Context, runner, *sql.Tx, func(), error) {
	b.mu.Lock()
	conn, tx := b.conn, b.tx
	b.mu.Unlock()
	if conn == nil {
		return nil, nil, nil, nil, ErrNotConnected
	}

	var timeoutCancel context.CancelFunc = func() {}
	if t := b.Cfg.Timeouts.Query; t > 0 {
		ctx, timeoutCancel = context.WithTimeout(ctx, t)
	}
	ctx, cancel := context.WithCancel(ctx)

	b.cancelMu.Lock()
	b.inflight = cancel
	b.cancelMu.Unlock()

	done := func() {
		b.cancelMu.Lock()
		b.inflight = nil
		b.cancelMu.Unlock()
		cancel()
		timeoutCancel()
	}

	if tx != nil {
		return ctx, tx, tx, done, nil
	}
	return ctx, conn, nil, done, nil
}

// ExecuteQuery runs one statement on the pinned connection, inside the open
// transaction when there is one.
func (b *BaseSQLAdapter) ExecuteQuery(ctx context.Context, sqlStr string, opts core.QueryOptions) (*core.QueryResult, error) {
	ctx, r, _, done, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return b.run(sqlStr, opts,
		func() (*sql.Rows, error) { return r.QueryContext(ctx, sqlStr) }, //nolint:rowserrcheck // checked in ReadRows
		func() (sql.Result, error) { return r.ExecContext(ctx, sqlStr) },
	)
}

func (b *BaseSQLAdapter) run(sqlStr string, opts core.QueryOptions, query func() (*sql.Rows, error), exec func() (sql.Result, error)) (*core.QueryResult, error) {
	start := time.Now()

	var res *core.QueryResult
	if ReturnsRows(sqlStr) {
		rows, err := query()
		if err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", err)
		}
		res, err = b.ReadRows(rows, opts.MaxRows)
		if err != nil {
			return nil, err
		}
		res.RowsAffected = int64(len(res.Rows))
		res.CommandTag = CommandTag(sqlStr, res.RowsAffected)
	} else {
		result, err := exec()
		if err != nil {
			return nil, fmt.Errorf("failed to execute SQL: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			n = 0
		}
		res = &core.QueryResult{RowsAffected: n, CommandTag: CommandTag(sqlStr, n)}
	}

	res.Stats.RowsReturned = int64(len(res.Rows))
	res.Stats.Elapsed = time.Since(start)
	return res, nil
}

// ReadRows materializes rows into a result and closes them. maxRows > 0 stops
// after that many rows and marks the result truncated when more were pending.
func (b *BaseSQLAdapter) ReadRows(rows *sql.Rows, maxRows int) (*core.QueryResult, error) {
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	res := &core.QueryResult{Columns: make([]core.Column, len(types))}
	binary := make([]bool, len(types))
	for i, ct := range types {
		res.Columns[i] = core.Column{Name: ct.Name(), Type: TypeTag(ct.DatabaseTypeName())}
		binary[i] = IsBinaryType(res.Columns[i].Type)
	}

	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Stats.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]core.Value, len(values))
		for i, v := range values {
			row[i] = FormatValue(v, binary[i])
		}
		res.Rows = append(res.Rows, row)
		if len(res.Rows)%progressEvery == 0 {
			b.Progress(uint64(len(res.Rows)), 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return res, nil
}

// BeginTransaction opens a transaction on the pinned connection.
func (b *BaseSQLAdapter) BeginTransaction(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrNotConnected
	}
	if b.tx != nil {
		return ErrTransactionActive
	}
	// The tx lives past this call; cancelling ctx must not roll it back.
	tx, err := b.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	b.tx = tx
	return nil
}

// Commit commits the open transaction. Without one it does nothing.
func (b *BaseSQLAdapter) Commit(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrNotConnected
	}
	if b.tx == nil {
		return nil
	}
	tx := b.tx
	b.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction. Without one it does nothing.
func (b *BaseSQLAdapter) Rollback(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrNotConnected
	}
	if b.tx == nil {
		return nil
	}
	tx := b.tx
	b.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// PrepareStatement prepares sqlStr on the pinned connection.
func (b *BaseSQLAdapter) PrepareStatement(ctx context.Context, sqlStr string) (*core.PreparedStatement, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}
	if !b.Capabilities().PreparedStatements {
		return b.Unsupported.PrepareStatement(ctx, sqlStr)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrNotConnected
	}
	stmt, err := b.conn.PrepareContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	id := uuid.NewString()
	b.stmts[id] = stmt
	return &core.PreparedStatement{
		ID:         id,
		SQL:        sqlStr,
		ParamCount: CountPlaceholders(sqlStr),
		Backend:    b.Backend,
		Handle:     stmt,
	}, nil
}

// ExecutePrepared runs a statement returned by PrepareStatement.
func (b *BaseSQLAdapter) ExecutePrepared(ctx context.Context, ps *core.PreparedStatement, params []core.PreparedParameter) (*core.QueryResult, error) {
	if ps == nil {
		return nil, errors.New("prepared statement is nil")
	}
	b.mu.Lock()
	stmt, ok := b.stmts[ps.ID]
	b.mu.Unlock()
	if !ok {
		if !b.IsConnected() {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("unknown prepared statement %s", ps.ID)
	}

	ctx, _, tx, done, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if tx != nil {
		stmt = tx.StmtContext(ctx, stmt)
		defer func() { _ = stmt.Close() }()
	}

	args := BindArgs(params)
	return b.run(ps.SQL, core.QueryOptions{},
		func() (*sql.Rows, error) { return stmt.QueryContext(ctx, args...) }, //nolint:rowserrcheck // checked in ReadRows
		func() (sql.Result, error) { return stmt.ExecContext(ctx, args...) },
	)
}

// ClosePrepared frees a prepared statement. Closing an unknown or already
// closed statement is a no-op.
func (b *BaseSQLAdapter) ClosePrepared(_ context.Context, ps *core.PreparedStatement) error {
	if ps == nil {
		return nil
	}
	b.mu.Lock()
	stmt, ok := b.stmts[ps.ID]
	delete(b.stmts, ps.ID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return stmt.Close()
}

// BindArgs converts prepared parameters into database/sql arguments.
func BindArgs(params []core.PreparedParameter) []any {
	args := make([]any, len(params))
	for i, p := range params {
		switch {
		case p.IsNull:
			args[i] = nil
		case p.Raw != nil:
			args[i] = p.Raw
		default:
			args[i] = p.Text
		}
	}
	return args
}

// FetchStatus returns a status snapshot. Connection info is built from the
// adapter's own state; other kinds run the configured StatusQueries.
func (b *BaseSQLAdapter) FetchStatus(ctx context.Context, kind core.StatusKind) (*core.StatusSnapshot, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	snap := &core.StatusSnapshot{Kind: kind, CapturedAt: time.Now()}
	if kind == core.StatusConnectionInfo {
		caps := b.Capabilities()
		snap.Add("backend", b.Backend)
		snap.Add("server_type", caps.ServerType)
		snap.Add("server_version", caps.ServerVersion)
		snap.Add("host", b.Cfg.Host)
		snap.Add("database", b.Cfg.Database)
		snap.Add("user", b.Cfg.Username)
		snap.Add("in_transaction", fmt.Sprint(b.InTransaction()))
	}

	q, ok := b.StatusQueries[kind]
	if !ok {
		if kind == core.StatusConnectionInfo {
			return snap, nil
		}
		return nil, &NotSupportedError{Feature: kind.String() + " status", Backend: b.Backend}
	}

	res, err := b.ExecuteQuery(ctx, q, core.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s status: %w", kind, err)
	}
	AppendStatus(snap, res)
	return snap, nil
}

// AppendStatus adds the entries of a status query result to snap.
func AppendStatus(snap *core.StatusSnapshot, res *core.QueryResult) {
	if len(res.Columns) == 2 {
		for _, row := range res.Rows {
			snap.Add(row[0].Text, row[1].Text)
		}
		return
	}
	if len(res.Rows) == 0 {
		return
	}
	for i, col := range res.Columns {
		snap.Add(col.Name, res.Rows[0][i].Text)
	}
}

// QueryValue runs sqlStr and returns the first column of the first row as text.
func (b *BaseSQLAdapter) QueryValue(ctx context.Context, sqlStr string) (string, error) {
	res, err := b.ExecuteQuery(ctx, sqlStr, core.QueryOptions{MaxRows: 1})
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return "", fmt.Errorf("no rows returned by %q", sqlStr)
	}
	return res.Rows[0][0].Text, nil
}
