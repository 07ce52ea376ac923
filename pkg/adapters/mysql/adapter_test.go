package mysql

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/dbconn/internal/testutil"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/adapter/adaptertest"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConfig(t *testing.T) {
	tests := []struct {
		name   string
		cfg    core.EngineConfig
		verify func(t *testing.T, mc *mysql.Config)
	}{
		{
			name: "tcp defaults",
			cfg:  core.EngineConfig{Username: "app", Password: "pw", Database: "shop", ApplicationName: "dbconn"},
			verify: func(t *testing.T, mc *mysql.Config) {
				assert.Equal(t, "tcp", mc.Net)
				assert.Equal(t, "localhost:3306", mc.Addr)
				assert.Equal(t, "app", mc.User)
				assert.Equal(t, "pw", mc.Passwd)
				assert.Equal(t, "shop", mc.DBName)
				assert.Equal(t, "program_name:dbconn", mc.ConnectionAttributes)
				assert.False(t, mc.MultiStatements)
			},
		},
		{
			name: "ipc uses unix socket",
			cfg:  core.EngineConfig{Mode: core.ModeIPC, Host: "/run/mysqld/mysqld.sock"},
			verify: func(t *testing.T, mc *mysql.Config) {
				assert.Equal(t, "unix", mc.Net)
				assert.Equal(t, "/run/mysqld/mysqld.sock", mc.Addr)
			},
		},
		{
			name: "timeouts and options",
			cfg: core.EngineConfig{
				Host: "db", Port: 3307,
				Timeouts: core.Timeouts{Connect: time.Second, Read: 2 * time.Second, Write: 3 * time.Second},
				Options:  map[string]string{"multi_statements": "true", "charset": "utf8mb4"},
			},
			verify: func(t *testing.T, mc *mysql.Config) {
				assert.Equal(t, "db:3307", mc.Addr)
				assert.Equal(t, time.Second, mc.Timeout)
				assert.Equal(t, 2*time.Second, mc.ReadTimeout)
				assert.Equal(t, 3*time.Second, mc.WriteTimeout)
				assert.True(t, mc.MultiStatements)
				assert.Equal(t, "utf8mb4", mc.Params["charset"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, buildConfig(tt.cfg))
		})
	}
}

func TestTLSConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    core.TLSOptions
		want    string
		wantErr string
	}{
		{name: "unset", want: "false"},
		{name: "disable", opts: core.TLSOptions{Mode: "disable"}, want: "false"},
		{name: "prefer", opts: core.TLSOptions{Mode: "prefer"}, want: "preferred"},
		{name: "require", opts: core.TLSOptions{Mode: "require"}, want: "skip-verify"},
		{name: "verify-full", opts: core.TLSOptions{Mode: "verify-full"}, want: "true"},
		{name: "unknown mode", opts: core.TLSOptions{Mode: "sometimes"}, wantErr: "unsupported tls mode"},
		{
			name:    "missing root cert",
			opts:    core.TLSOptions{Mode: "verify-ca", RootCert: filepath.Join(t.TempDir(), "ca.pem")},
			wantErr: "failed to read root certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(nil)
			got, err := a.tlsConfig(tt.opts)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, a.tlsName)
		})
	}
}

func TestServerType(t *testing.T) {
	assert.Equal(t, "mariadb", serverType("10.11.6-MariaDB-0+deb12u1"))
	assert.Equal(t, "mysql", serverType("8.0.36"))
}

func TestConnectHint(t *testing.T) {
	tcp := buildConfig(core.EngineConfig{Host: "db", Port: 3306})
	unix := buildConfig(core.EngineConfig{Mode: core.ModeIPC, Host: "/tmp/mysql.sock"})

	assert.Equal(t, "is the server running on db:3306 and accepting TCP/IP connections?",
		connectHint(core.EngineConfig{}, tcp, errors.New("dial tcp: connection refused")))
	assert.Contains(t, connectHint(core.EngineConfig{Host: "/tmp/mysql.sock"}, unix, errors.New("no such file")), `"/tmp/mysql.sock"`)
	assert.Equal(t, "check the username and credential of the profile",
		connectHint(core.EngineConfig{}, tcp, &mysql.MySQLError{Number: 1045, Message: "Access denied"}))
	assert.Empty(t, connectHint(core.EngineConfig{}, tcp, &mysql.MySQLError{Number: 1049, Message: "Unknown database"}))
}

func TestConnect_Refused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	a := New(testutil.NewTestLogger(t))
	err = a.Connect(context.Background(), core.EngineConfig{
		Host: "127.0.0.1", Port: port,
		Timeouts: core.Timeouts{Connect: 2 * time.Second},
	})
	var ce *adapter.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "Hint: is the server running on 127.0.0.1:"+strconv.Itoa(port))
	assert.False(t, a.IsConnected())
	assert.NoError(t, a.Disconnect())
}

// integrationConfig reads DBCONN_TEST_MYSQL_DSN, a go-sql-driver DSN such as
// "root:secret@tcp(127.0.0.1:3306)/test".
func integrationConfig(t *testing.T) core.EngineConfig {
	t.Helper()
	dsn := os.Getenv("DBCONN_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DBCONN_TEST_MYSQL_DSN not set")
	}
	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(mc.Addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return core.EngineConfig{
		Family:          core.EngineMySQL,
		Host:            host,
		Port:            port,
		Database:        mc.DBName,
		Username:        mc.User,
		Password:        mc.Passwd,
		ApplicationName: "dbconn-test",
		Timeouts:        core.Timeouts{Connect: 5 * time.Second},
	}
}

func TestAdapter_Conformance(t *testing.T) {
	cfg := integrationConfig(t)
	adaptertest.Run(t, adaptertest.Harness{
		New:    func(t *testing.T) adapter.Adapter { return New(testutil.NewTestLogger(t)) },
		Config: func(*testing.T) core.EngineConfig { return cfg },
		Query:  "SELECT 1 AS one",
	})
}

func TestAdapter_Integration(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()
	a := New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(ctx, cfg))
	defer func() { _ = a.Disconnect() }()

	caps := a.Capabilities()
	assert.NotZero(t, caps.MajorVersion)

	snap, err := a.FetchStatus(ctx, core.StatusStatistics)
	require.NoError(t, err)
	_, ok := snap.Get("Uptime")
	assert.True(t, ok)

	errc := make(chan error, 1)
	go func() {
		_, err := a.ExecuteQuery(ctx, "SELECT SLEEP(30)", core.QueryOptions{})
		errc <- err
	}()
	var queryErr error
	require.Eventually(t, func() bool {
		_ = a.Cancel()
		select {
		case queryErr = <-errc:
			return true
		default:
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
	assert.Error(t, queryErr)
}
