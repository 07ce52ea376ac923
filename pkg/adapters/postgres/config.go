package postgres

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbconn/pkg/core"
)

// connKeys are EngineConfig.Options consumed by the connection string. Every
// other option is sent to the server as a runtime parameter.
var connKeys = []string{"sslmode", "sslrootcert", "sslcert", "sslkey", "sslpassword", "target_session_attrs", "krbsrvname"}

// buildConnString constructs a keyword/value connection string.
func buildConnString(cfg core.EngineConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = core.EnginePostgres.DefaultPort()
	}

	kv := [][2]string{
		{"host", host},
		{"port", strconv.Itoa(port)},
		{"dbname", cfg.Database},
		{"user", cfg.Username},
		{"password", cfg.Password},
		{"application_name", cfg.ApplicationName},
		{"sslmode", sslMode(cfg)},
		{"sslrootcert", cfg.TLS.RootCert},
		{"sslcert", cfg.TLS.Cert},
		{"sslkey", cfg.TLS.Key},
		{"sslpassword", cfg.TLS.KeyPassword},
	}
	for _, key := range connKeys {
		if key == "sslmode" {
			continue
		}
		if v := cfg.Option(key, ""); v != "" {
			kv = append(kv, [2]string{key, v})
		}
	}

	var b strings.Builder
	for _, pair := range kv {
		if pair[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", pair[0], quoteValue(pair[1]))
	}
	return b.String()
}

// runtimeParams returns the options that are not connection keys.
func runtimeParams(cfg core.EngineConfig) map[string]string {
	params := make(map[string]string)
	for k, v := range cfg.Options {
		if !slices.Contains(connKeys, k) {
			params[k] = v
		}
	}
	return params
}

func sslMode(cfg core.EngineConfig) string {
	if cfg.TLS.Mode != "" {
		return cfg.TLS.Mode
	}
	return cfg.Option("sslmode", "disable")
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// connectHint returns the libpq-style connectivity hint for cfg.
func connectHint(cfg core.EngineConfig) string {
	port := cfg.Port
	if port == 0 {
		port = core.EnginePostgres.DefaultPort()
	}
	if cfg.Mode == core.ModeIPC || strings.HasPrefix(cfg.Host, "/") {
		socket := filepath.Join(cfg.Host, fmt.Sprintf(".s.PGSQL.%d", port))
		return fmt.Sprintf("is the server running locally and accepting connections on Unix domain socket %q?", socket)
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("is the server running on host %q and accepting TCP/IP connections on port %d?", host, port)
}
