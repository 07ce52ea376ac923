// Package mysql provides a MySQL/MariaDB adapter over go-sql-driver/mysql.
package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// BackendName is the name the adapter reports.
const BackendName = "mysql"

// Adapter implements the adapter.Adapter interface for MySQL and MariaDB.
type Adapter struct {
	adapter.BaseSQLAdapter

	tlsName string
}

// New creates a new MySQL adapter instance.
func New(logger *slog.Logger) *Adapter {
	a := &Adapter{BaseSQLAdapter: adapter.NewBaseSQLAdapter(BackendName, logger)}
	a.StatusQueries = map[core.StatusKind]string{
		core.StatusServerInfo: `SELECT VERSION() AS version, @@version_comment AS version_comment,
			@@hostname AS hostname, @@port AS port`,
		core.StatusDatabaseInfo: `SELECT DATABASE() AS database_name, @@character_set_database AS charset,
			@@collation_database AS collation`,
		core.StatusStatistics: "SHOW GLOBAL STATUS",
	}
	return a
}

// buildConfig turns an engine config into a driver config. IPC mode dials the
// Unix socket named by Host.
func buildConfig(cfg core.EngineConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	if cfg.Mode == core.ModeIPC {
		mc.Net = "unix"
		mc.Addr = cfg.Host
	} else {
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = core.EngineMySQL.DefaultPort()
		}
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	mc.Timeout = cfg.Timeouts.Connect
	mc.ReadTimeout = cfg.Timeouts.Read
	mc.WriteTimeout = cfg.Timeouts.Write
	mc.MultiStatements = cfg.Option("multi_statements", "false") == "true"
	mc.ConnectionAttributes = "program_name:" + cfg.ApplicationName
	if cs := cfg.Option("charset", ""); cs != "" {
		mc.Params = map[string]string{"charset": cs}
	}
	return mc
}

// tlsConfig maps the TLS mode onto the driver. Custom certificates are
// registered under a per-adapter name.
func (a *Adapter) tlsConfig(opts core.TLSOptions) (string, error) {
	switch opts.Mode {
	case "", "disable":
		return "false", nil
	case "prefer":
		return "preferred", nil
	case "require":
		if opts.RootCert == "" && opts.Cert == "" {
			return "skip-verify", nil
		}
	case "verify-ca", "verify-full":
	default:
		return "", fmt.Errorf("unsupported tls mode %q", opts.Mode)
	}
	if opts.RootCert == "" && opts.Cert == "" {
		return "true", nil
	}

	tc := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: opts.Mode == "require"} //nolint:gosec // require mode does not verify
	if opts.RootCert != "" {
		pem, err := os.ReadFile(opts.RootCert)
		if err != nil {
			return "", fmt.Errorf("failed to read root certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return "", fmt.Errorf("no certificates found in %s", opts.RootCert)
		}
		tc.RootCAs = pool
	}
	if opts.Cert != "" {
		cert, err := tls.LoadX509KeyPair(opts.Cert, opts.Key)
		if err != nil {
			return "", fmt.Errorf("failed to load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	name := "dbconn-" + uuid.NewString()
	if err := mysql.RegisterTLSConfig(name, tc); err != nil {
		return "", err
	}
	a.tlsName = name
	return name, nil
}

// Connect opens a session and identifies the server.
func (a *Adapter) Connect(ctx context.Context, cfg core.EngineConfig) error {
	if a.IsConnected() {
		_ = a.Disconnect()
	}
	mc := buildConfig(cfg)
	tlsName, err := a.tlsConfig(cfg.TLS)
	if err != nil {
		return err
	}
	mc.TLSConfig = tlsName

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return fmt.Errorf("failed to create mysql connector: %w", err)
	}
	a.Logger.Debug("connecting to mysql", slog.String("addr", mc.Addr), slog.String("database", mc.DBName))

	if err := a.Open(ctx, sql.OpenDB(connector), cfg); err != nil {
		a.releaseTLS()
		return &adapter.ConnectError{Backend: BackendName, Target: mc.Addr, Hint: connectHint(cfg, mc, err), Err: err}
	}

	version, err := a.QueryValue(ctx, "SELECT VERSION()")
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
		Views:              true,
		Triggers:           true,
		Procedures:         true,
		TempTables:         true,
		MultipleDatabases:  true,
		UserAdmin:          true,
		ServerType:         serverType(version),
	}
	caps.SetServerVersion(version)
	a.SetCapabilities(caps)
	return nil
}

// Disconnect closes the session and drops any registered TLS config.
func (a *Adapter) Disconnect() error {
	err := a.BaseSQLAdapter.Disconnect()
	a.releaseTLS()
	return err
}

func (a *Adapter) releaseTLS() {
	if a.tlsName != "" {
		mysql.DeregisterTLSConfig(a.tlsName)
		a.tlsName = ""
	}
}

func serverType(version string) string {
	if strings.Contains(strings.ToLower(version), "mariadb") {
		return "mariadb"
	}
	return BackendName
}

func connectHint(cfg core.EngineConfig, mc *mysql.Config, err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == 1045 {
			return "check the username and credential of the profile"
		}
		return ""
	}
	if mc.Net == "unix" {
		return fmt.Sprintf("is the server running locally and accepting connections on socket %q?", cfg.Host)
	}
	return fmt.Sprintf("is the server running on %s and accepting TCP/IP connections?", mc.Addr)
}

var _ adapter.Adapter = (*Adapter)(nil)
