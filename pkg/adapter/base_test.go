package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBase(t *testing.T, caps core.Capabilities) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	base := &BaseSQLAdapter{Unsupported: Unsupported{Backend: "mock"}}
	require.NoError(t, base.Open(context.Background(), db, core.EngineConfig{Host: "localhost", Database: "app"}))
	base.SetCapabilities(caps)
	return base, mock
}

func TestBaseSQLAdapter_Disconnect(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "disconnect with nil DB", setupDB: false},
		{name: "disconnect with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				var mock sqlmock.Sqlmock
				base, mock = newMockBase(t, core.Capabilities{Transactions: true})
				mock.ExpectClose()
				assert.True(t, base.IsConnected())
			}

			assert.NoError(t, base.Disconnect())
			assert.NoError(t, base.Disconnect(), "second Disconnect is a no-op")
			assert.False(t, base.IsConnected())
			assert.True(t, base.Capabilities().IsZero(), "capabilities reset on disconnect")
		})
	}
}

func TestBaseSQLAdapter_ExecuteQuery(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		maxRows   int
		expectErr bool
		errMsg    string
		check     func(t *testing.T, res *core.QueryResult)
	}{
		{
			name: "exec success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE users (id INT)",
			check: func(t *testing.T, res *core.QueryResult) {
				assert.Equal(t, "CREATE TABLE", res.CommandTag)
				assert.Empty(t, res.Columns)
			},
		},
		{
			name: "update reports rows affected",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 3))
			},
			sql: "UPDATE users SET active = true",
			check: func(t *testing.T, res *core.QueryResult) {
				assert.Equal(t, int64(3), res.RowsAffected)
				assert.Equal(t, "UPDATE 3", res.CommandTag)
			},
		},
		{
			name: "exec with error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute SQL",
		},
		{
			name: "query success",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "name", "score"}).
					AddRow(1, "alice", 1.5).
					AddRow(2, nil, 2.0)
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			sql: "SELECT id, name, score FROM users",
			check: func(t *testing.T, res *core.QueryResult) {
				assert.Equal(t, []string{"id", "name", "score"}, res.ColumnNames())
				assert.Equal(t, "UNKNOWN", res.Columns[0].Type)
				require.Len(t, res.Rows, 2)
				assert.Equal(t, "1", res.Rows[0][0].Text)
				assert.Equal(t, "alice", res.Rows[0][1].Text)
				assert.Equal(t, "1.5", res.Rows[0][2].Text)
				assert.True(t, res.Rows[1][1].IsNull)
				assert.Equal(t, "NULL", res.Rows[1][1].Text)
				assert.Equal(t, "SELECT 2", res.CommandTag)
				assert.Equal(t, int64(2), res.Stats.RowsReturned)
			},
		},
		{
			name: "paging truncates",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).AddRow(3)
				mock.ExpectQuery("SELECT n").WillReturnRows(rows)
			},
			sql:     "SELECT n FROM numbers",
			maxRows: 2,
			check: func(t *testing.T, res *core.QueryResult) {
				assert.Len(t, res.Rows, 2)
				assert.True(t, res.Stats.Truncated)
			},
		},
		{
			name: "binary column carries raw bytes",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("payload").OfType("BLOB", []byte{})).
					AddRow([]byte{0xde, 0xad})
				mock.ExpectQuery("SELECT payload").WillReturnRows(rows)
			},
			sql: "SELECT payload FROM blobs",
			check: func(t *testing.T, res *core.QueryResult) {
				require.Len(t, res.Rows, 1)
				assert.Equal(t, "BLOB", res.Columns[0].Type)
				assert.Equal(t, []byte{0xde, 0xad}, res.Rows[0][0].Raw)
				assert.Equal(t, "dead", res.Rows[0][0].Text)
			},
		},
		{
			name: "query with error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT broken").WillReturnError(assert.AnError)
			},
			sql:       "SELECT broken",
			expectErr: true,
			errMsg:    "failed to execute query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMockBase(t, core.Capabilities{Paging: true})
			tt.setupMock(mock)

			res, err := base.ExecuteQuery(context.Background(), tt.sql, core.QueryOptions{MaxRows: tt.maxRows})
			if tt.expectErr {
				require.Error(t, err)
				assert.Nil(t, res)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
				tt.check(t, res)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBaseSQLAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	base := &BaseSQLAdapter{}

	_, err := base.ExecuteQuery(ctx, "SELECT 1", core.QueryOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, base.BeginTransaction(ctx), ErrNotConnected)
	assert.ErrorIs(t, base.Commit(ctx), ErrNotConnected)
	assert.ErrorIs(t, base.Rollback(ctx), ErrNotConnected)
	_, err = base.FetchStatus(ctx, core.StatusServerInfo)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, base.Cancel(), ErrNotSupported, "zero capabilities never support cancel")
}

func TestBaseSQLAdapter_Transactions(t *testing.T) {
	ctx := context.Background()
	base, mock := newMockBase(t, core.Capabilities{Transactions: true})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, base.BeginTransaction(ctx))
	assert.True(t, base.InTransaction())
	assert.ErrorIs(t, base.BeginTransaction(ctx), ErrTransactionActive)

	res, err := base.ExecuteQuery(ctx, "INSERT INTO users VALUES (1)", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "INSERT 0 1", res.CommandTag)

	require.NoError(t, base.Commit(ctx))
	assert.False(t, base.InTransaction())
	assert.NoError(t, base.Commit(ctx), "commit without a transaction is a no-op")

	require.NoError(t, base.BeginTransaction(ctx))
	require.NoError(t, base.Rollback(ctx))
	assert.False(t, base.InTransaction())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_Cancel(t *testing.T) {
	base, mock := newMockBase(t, core.Capabilities{Cancel: true})
	mock.ExpectQuery("SELECT pg_sleep").
		WillDelayFor(5 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

	errCh := make(chan error, 1)
	go func() {
		_, err := base.ExecuteQuery(context.Background(), "SELECT pg_sleep(10)", core.QueryOptions{})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		base.cancelMu.Lock()
		defer base.cancelMu.Unlock()
		return base.inflight != nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, base.Cancel())

	select {
	case err := <-errCh:
		require.Error(t, err, "cancelled query should fail")
	case <-time.After(2 * time.Second):
		t.Fatal("query was not cancelled")
	}
	assert.NoError(t, base.Cancel(), "cancel with nothing in flight is a no-op")
}

func TestBaseSQLAdapter_CancelNotAdvertised(t *testing.T) {
	base, _ := newMockBase(t, core.Capabilities{Transactions: true})
	err := base.Cancel()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestBaseSQLAdapter_PreparedStatements(t *testing.T) {
	ctx := context.Background()

	t.Run("not advertised", func(t *testing.T) {
		base, _ := newMockBase(t, core.Capabilities{})
		_, err := base.PrepareStatement(ctx, "SELECT ?")
		assert.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("prepare execute close", func(t *testing.T) {
		base, mock := newMockBase(t, core.Capabilities{PreparedStatements: true})
		prep := mock.ExpectPrepare("SELECT name FROM users WHERE id = \\?")
		prep.ExpectQuery().WithArgs("7").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("grace"))
		prep.WillBeClosed()

		stmt, err := base.PrepareStatement(ctx, "SELECT name FROM users WHERE id = ?")
		require.NoError(t, err)
		assert.Equal(t, 1, stmt.ParamCount)
		assert.NotEmpty(t, stmt.ID)

		res, err := base.ExecutePrepared(ctx, stmt, []core.PreparedParameter{core.TextParam("7")})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "grace", res.Rows[0][0].Text)

		require.NoError(t, base.ClosePrepared(ctx, stmt))
		assert.NoError(t, base.ClosePrepared(ctx, stmt), "second close is a no-op")

		_, err = base.ExecutePrepared(ctx, stmt, nil)
		assert.ErrorContains(t, err, "unknown prepared statement")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBaseSQLAdapter_FetchStatus(t *testing.T) {
	ctx := context.Background()
	base, mock := newMockBase(t, core.Capabilities{Status: true, ServerType: "mock"})
	base.StatusQueries = map[core.StatusKind]string{
		core.StatusStatistics: "SHOW STATUS",
		core.StatusServerInfo: "SELECT version() AS version, current_user AS user",
	}

	mock.ExpectQuery("SHOW STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("Uptime", "42").AddRow("Threads_connected", "3"))
	mock.ExpectQuery("SELECT version").WillReturnRows(
		sqlmock.NewRows([]string{"version", "user"}).AddRow("1.0", "app"))

	snap, err := base.FetchStatus(ctx, core.StatusStatistics)
	require.NoError(t, err)
	v, ok := snap.Get("Uptime")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Len(t, snap.Entries, 2)

	snap, err = base.FetchStatus(ctx, core.StatusServerInfo)
	require.NoError(t, err)
	v, _ = snap.Get("version")
	assert.Equal(t, "1.0", v)

	snap, err = base.FetchStatus(ctx, core.StatusConnectionInfo)
	require.NoError(t, err)
	v, _ = snap.Get("database")
	assert.Equal(t, "app", v)
	v, _ = snap.Get("in_transaction")
	assert.Equal(t, "false", v)

	_, err = base.FetchStatus(ctx, core.StatusDatabaseInfo)
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_Progress(t *testing.T) {
	base, mock := newMockBase(t, core.Capabilities{})
	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 2500; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT n").WillReturnRows(rows)

	var reports []uint64
	base.SetProgressCallback(func(done, _ uint64) { reports = append(reports, done) })

	_, err := base.ExecuteQuery(context.Background(), "SELECT n FROM big", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1000, 2000}, reports)
}
