package core

import (
	"log/slog"
	"time"
)

// TLSOptions holds transport security settings passed through to adapters.
type TLSOptions struct {
	Mode        string `koanf:"mode"` // disable, prefer, require, verify-ca, verify-full
	RootCert    string `koanf:"root_cert"`
	Cert        string `koanf:"cert"`
	Key         string `koanf:"key"`
	KeyPassword string `koanf:"key_password"`
}

// Enabled reports whether TLS was requested.
func (t TLSOptions) Enabled() bool {
	return t.Mode != "" && t.Mode != "disable"
}

// Timeouts configures per-call deadlines each adapter honors internally.
// Zero means no limit.
type Timeouts struct {
	Connect time.Duration `koanf:"connect"`
	Query   time.Duration `koanf:"query"`
	Read    time.Duration `koanf:"read"`
	Write   time.Duration `koanf:"write"`
}

// EngineConfig is the resolved, connection-ready configuration handed to
// Adapter.Connect. It carries the materialized password and must not be
// persisted.
type EngineConfig struct {
	Family          EngineFamily
	Mode            ConnectionMode
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	ApplicationName string
	Role            string
	TLS             TLSOptions
	Options         map[string]string
	Params          map[string]any
	FixturePath     string
	Timeouts        Timeouts

	// StreamWindowBytes and StreamChunkBytes size streamed transfers.
	StreamWindowBytes uint32
	StreamChunkBytes  uint32
}

// Option returns a driver option or def when unset.
func (c EngineConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// LogValue implements slog.LogValuer and never exposes the password.
func (c EngineConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("family", c.Family.String()),
		slog.String("mode", c.Mode.String()),
		slog.String("host", c.Host),
		slog.Int("port", c.Port),
		slog.String("database", c.Database),
		slog.String("user", c.Username),
		slog.Bool("tls", c.TLS.Enabled()),
	)
}
