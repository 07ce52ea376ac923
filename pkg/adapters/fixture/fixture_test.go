package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leapstack-labs/dbconn/internal/testutil"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/adapter/adaptertest"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T, path string) *Adapter {
	t.Helper()
	a := New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), core.EngineConfig{FixturePath: path}))
	t.Cleanup(func() { _ = a.Disconnect() })
	return a
}

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConformance(t *testing.T) {
	adaptertest.Run(t, adaptertest.Harness{
		New: func(t *testing.T) adapter.Adapter { return New(testutil.NewTestLogger(t)) },
		Config: func(_ *testing.T) core.EngineConfig {
			return core.EngineConfig{Family: core.EngineFixture, FixturePath: "testdata/demo.json"}
		},
		Query: "select 1",
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"select 1", "select 1"},
		{"  SELECT   1;  ", "select 1"},
		{"SELECT\n\t1", "select 1"},
		{"select 1;;", "select 1;"},
		{"select 1 ;", "select 1"},
		{"SELECT 'STRAẞE'", "select 'straße'"},
		{"select 'STRASSE'", "select 'strasse'"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.in))
		})
	}
}

func TestExactMatch(t *testing.T) {
	a := connected(t, "testdata/demo.json")
	ctx := context.Background()

	tests := []struct {
		name    string
		sql     string
		matches bool
	}{
		{"identical", "select 1", true},
		{"padded and upper case", "  SELECT 1;  ", true},
		{"internal whitespace", "SELECT\n   1", true},
		{"different literal", "select 2", false},
		{"extra token", "select 1 from dual", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.ExecuteQuery(ctx, tt.sql, core.QueryOptions{})
			if !tt.matches {
				assert.ErrorIs(t, err, ErrNoMatch)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			require.Len(t, res.Columns, 1)
			require.Len(t, res.Rows, 1)
			assert.Equal(t, "1", res.Rows[0][0].Text)
			assert.Equal(t, "INT4", res.Columns[0].Type)
			assert.Equal(t, "SELECT 1", res.CommandTag)
		})
	}
}

func TestExactMatch_NoCaseFolding(t *testing.T) {
	f, err := Parse([]byte(`{"queries": [{"match": "select 'straße'", "result": {"command_tag": "SELECT 1"}}]}`), "json")
	require.NoError(t, err)

	_, ok := f.Lookup("select 'STRASSE'")
	assert.False(t, ok, "ß must not fold to ss")

	rule, ok := f.Lookup("SELECT 'STRAẞE';")
	require.True(t, ok)
	assert.Equal(t, "select 'straße'", rule.Match)
}

func TestRegexMatch(t *testing.T) {
	a := connected(t, "testdata/demo.json")
	ctx := context.Background()

	res, err := a.ExecuteQuery(ctx, "SELECT id, name FROM demo", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.ColumnNames())
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "alpha", res.Rows[0][1].Text)
	assert.True(t, res.Rows[2][1].IsNull)
	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Equal(t, int64(3), res.Stats.RowsReturned)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "notice", res.Messages[0].Severity)

	res, err = a.ExecuteQuery(ctx, "select * from DEMO where id = 1", core.QueryOptions{})
	require.NoError(t, err, "regex rules match case-insensitively")
	assert.Len(t, res.Rows, 3)

	_, err = a.ExecuteQuery(ctx, "SELECT 1 + 1", core.QueryOptions{})
	require.Error(t, err)
	assert.EqualError(t, err, "no fixture match for query")
}

func TestFirstDeclaredRuleWins(t *testing.T) {
	path := writeFixture(t, "overlap.json", `{
		"queries": [
			{"match": "orders", "match_type": "regex", "result": {"command_tag": "BROAD"}},
			{"match": "select * from orders where id = 1", "result": {"command_tag": "SPECIFIC"}},
			{"match": "select \\* from orders", "match_type": "regex", "result": {"command_tag": "REGEX"}}
		]
	}`)
	a := connected(t, path)

	res, err := a.ExecuteQuery(context.Background(), "select * from orders where id = 1", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "BROAD", res.CommandTag)
}

func TestDeclaredError(t *testing.T) {
	a := connected(t, "testdata/demo.json")

	res, err := a.ExecuteQuery(context.Background(), "SELECT boom;", core.QueryOptions{})
	require.Error(t, err)
	assert.Nil(t, res)

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, `relation "boom" does not exist`, qe.Message)
	assert.Equal(t, []string{"parse", "bind"}, qe.Stack)
}

func TestResultIsACopy(t *testing.T) {
	a := connected(t, "testdata/demo.json")
	ctx := context.Background()

	res, err := a.ExecuteQuery(ctx, "select 1", core.QueryOptions{})
	require.NoError(t, err)
	res.Rows[0][0].Text = "mutated"

	res, err = a.ExecuteQuery(ctx, "select 1", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Rows[0][0].Text)
}

func TestMaxRows(t *testing.T) {
	a := connected(t, "testdata/demo.json")

	res, err := a.ExecuteQuery(context.Background(), "select * from demo", core.QueryOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Stats.Truncated)
}

func TestYAMLFixture(t *testing.T) {
	a := connected(t, "testdata/demo.yaml")
	ctx := context.Background()

	res, err := a.ExecuteQuery(ctx, "SELECT 1", core.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Rows[0][0].Text)
	assert.Equal(t, "INT4", res.Columns[0].Type)

	res, err = a.ExecuteQuery(ctx, "select payload from blobs", core.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []byte{0xca, 0xfe}, res.Rows[0][0].Raw)
	assert.Equal(t, "0xCAFE", res.Rows[0][0].Text)
	assert.True(t, res.Rows[1][0].IsNull)
	assert.Equal(t, "labelled", res.Rows[2][0].Text)
	assert.Equal(t, []byte{0x00, 0xff}, res.Rows[2][0].Raw)
}

func TestCellValues(t *testing.T) {
	f, err := Parse([]byte(`{"queries": [{"match": "x", "result": {
		"columns": [{"name": "a"}, {"name": "b"}, {"name": "c"}, {"name": "d"}, {"name": "e"}],
		"rows": [[true, 2.0, 2.5, -7, {"text": "t"}]],
		"rows_affected": "5",
		"messages": [{"severity": "warning", "message": "careful", "detail": "d"}]
	}}]}`), "json")
	require.NoError(t, err)

	res := f.Rules[0].Result
	assert.Equal(t, "UNKNOWN", res.Columns[0].Type)
	row := res.Rows[0]
	assert.Equal(t, "true", row[0].Text)
	assert.Equal(t, "2", row[1].Text)
	assert.Equal(t, "2.5", row[2].Text)
	assert.Equal(t, "-7", row[3].Text)
	assert.Equal(t, "t", row[4].Text)
	assert.Equal(t, int64(5), res.RowsAffected)
	assert.Equal(t, []core.Message{{Severity: "warning", Message: "careful", Detail: "d"}}, res.Messages)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"invalid json", `{"queries": [`, "parse error"},
		{"root not object", `[]`, "fixture root must be an object"},
		{"missing queries", `{}`, "fixture must contain a 'queries' array"},
		{"missing match", `{"queries": [{"result": {}}]}`, "queries[0]: query entry missing 'match' string"},
		{"no outcome", `{"queries": [{"match": "x"}]}`, "query entry requires result or error"},
		{"bad regex", `{"queries": [{"match": "(", "match_type": "regex", "result": {}}]}`, "invalid regex in query match"},
		{"bad match type", `{"queries": [{"match": "x", "match_type": "fuzzy", "result": {}}]}`, `unknown match_type "fuzzy"`},
		{"error without message", `{"queries": [{"match": "x", "error": {}}]}`, "error.message must be a string"},
		{"rows not array", `{"queries": [{"match": "x", "result": {"rows": 1}}]}`, "rows must be an array"},
		{"odd hex", `{"queries": [{"match": "x", "result": {"rows": [[{"data_hex": "abc"}]]}}]}`, "rows[0][0]: data_hex must have an even number of digits"},
		{"bad hex", `{"queries": [{"match": "x", "result": {"rows": [[{"data_hex": "zz"}]]}}]}`, "invalid hex"},
		{"row width", `{"queries": [{"match": "x", "result": {"columns": [{"name": "a"}], "rows": [[1, 2]]}}]}`, "rows[0] has 2 cells, expected 1"},
		{"bad cell", `{"queries": [{"match": "x", "result": {"rows": [[[1]]]}}]}`, "unsupported cell value type"},
		{"bad status kind", `{"queries": [], "status": {"weather": []}}`, `unknown status kind "weather"`},
		{"notification without channel", `{"queries": [], "notifications": [{"payload": "p"}]}`, "notifications[0] missing 'channel' string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), "json")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			var le *LoadError
			assert.True(t, errors.As(err, &le), "malformed fixtures report a LoadError")
		})
	}
}

func TestConnect_Failures(t *testing.T) {
	ctx := context.Background()

	a := New(nil)
	assert.ErrorIs(t, a.Connect(ctx, core.EngineConfig{}), ErrNoPath)

	err := a.Connect(ctx, core.EngineConfig{FixturePath: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to open fixture file")
	assert.False(t, a.IsConnected())

	path := writeFixture(t, "broken.json", `{"queries": [{"match": 1}]}`)
	err = a.Connect(ctx, core.EngineConfig{FixturePath: path})
	require.Error(t, err, "malformed fixtures fail at connect time")
	assert.Contains(t, err.Error(), path)
	assert.False(t, a.IsConnected())
}

func TestTransactionsAndCancel(t *testing.T) {
	ctx := context.Background()
	a := New(nil)

	assert.ErrorIs(t, a.BeginTransaction(ctx), adapter.ErrNotConnected)
	assert.ErrorIs(t, a.Cancel(), adapter.ErrNotConnected)

	a = connected(t, "testdata/demo.json")
	assert.NoError(t, a.BeginTransaction(ctx))
	assert.NoError(t, a.BeginTransaction(ctx))
	assert.NoError(t, a.Commit(ctx))
	assert.NoError(t, a.Rollback(ctx))
	assert.NoError(t, a.Cancel())
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	a := connected(t, "testdata/demo.json")
	require.True(t, a.Capabilities().Notifications)

	ev, err := a.FetchNotification(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev, "nothing is delivered before subscribing")

	a = connected(t, "testdata/demo.json")
	require.NoError(t, a.Subscribe(ctx, "JOBS", ""))

	ev, err = a.FetchNotification(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "jobs", ev.Channel)
	assert.Equal(t, "job-1 done", string(ev.Payload))
	assert.Equal(t, "UPDATE", ev.ChangeTag)

	ev, err = a.FetchNotification(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "job-2 done", string(ev.Payload))

	ev, err = a.FetchNotification(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)

	assert.NoError(t, a.Unsubscribe(ctx, "jobs"))
}

func TestNotifications_ConcurrentDisconnect(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		a := connected(t, "testdata/demo.json")
		require.NoError(t, a.Subscribe(ctx, "jobs", ""))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Disconnect()
		}()
		go func() {
			defer wg.Done()
			if err := a.Subscribe(ctx, "other", ""); err != nil {
				assert.True(t, errors.Is(err, adapter.ErrNotConnected) || errors.Is(err, adapter.ErrNotSupported), err)
			}
			if _, err := a.FetchNotification(ctx); err != nil {
				assert.True(t, errors.Is(err, adapter.ErrNotConnected) || errors.Is(err, adapter.ErrNotSupported), err)
			}
		}()
		wg.Wait()
	}
}

func TestNotifications_NotDeclared(t *testing.T) {
	a := connected(t, "testdata/demo.yaml")
	assert.False(t, a.Capabilities().Notifications)
	assert.ErrorIs(t, a.Subscribe(context.Background(), "jobs", ""), adapter.ErrNotSupported)
}

func TestFetchStatus(t *testing.T) {
	ctx := context.Background()
	a := connected(t, "testdata/demo.json")

	snap, err := a.FetchStatus(ctx, core.StatusServerInfo)
	require.NoError(t, err)
	v, ok := snap.Get("uptime_seconds")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, "version", snap.Entries[0].Key, "declaration order is kept")

	_, err = a.FetchStatus(ctx, core.StatusStatistics)
	assert.ErrorIs(t, err, adapter.ErrNotSupported)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, "yaml", FormatForPath("a/b.YML"))
	assert.Equal(t, "yaml", FormatForPath("b.yaml"))
	assert.Equal(t, "json", FormatForPath("b.json"))
	assert.Equal(t, "json", FormatForPath("b"))
}
