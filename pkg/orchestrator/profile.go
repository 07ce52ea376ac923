package orchestrator

import (
	"time"

	"github.com/leapstack-labs/dbconn/pkg/adapters/fixture"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// DefaultApplicationName is reported to engines that accept one.
const DefaultApplicationName = "dbconn"

// Profile describes how to reach an engine. It holds a credential reference,
// never a password.
type Profile struct {
	Name            string            `koanf:"name"`
	Backend         string            `koanf:"backend"`
	Mode            string            `koanf:"mode"`
	Host            string            `koanf:"host"`
	Port            int               `koanf:"port"`
	IPCPath         string            `koanf:"ipc_path"`
	Database        string            `koanf:"database"`
	Username        string            `koanf:"username"`
	CredentialRef   string            `koanf:"credential"`
	ApplicationName string            `koanf:"application_name"`
	Role            string            `koanf:"role"`
	TLS             core.TLSOptions   `koanf:"tls"`
	Options         map[string]string `koanf:"options"`
	Params          map[string]any    `koanf:"params"`
	FixturePath     string            `koanf:"fixture"`
	// Timeouts override the orchestrator's network options field by field.
	Timeouts core.Timeouts `koanf:"timeouts"`
}

// NetworkOptions are the orchestrator-wide transport defaults.
type NetworkOptions struct {
	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
	QueryTimeout      time.Duration `koanf:"query_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	StreamWindowBytes uint32        `koanf:"stream_window_bytes"`
	StreamChunkBytes  uint32        `koanf:"stream_chunk_bytes"`
}

// DefaultNetworkOptions returns the defaults used when none are configured.
func DefaultNetworkOptions() NetworkOptions {
	return NetworkOptions{
		ConnectTimeout:    5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		StreamWindowBytes: 64 * 1024,
		StreamChunkBytes:  16 * 1024,
	}
}

// BuildEngineConfig resolves a profile into the config handed to an adapter.
func BuildEngineConfig(p Profile, password string, net NetworkOptions) (core.EngineConfig, error) {
	family, err := core.ParseEngineFamily(p.Backend, p.FixturePath)
	if err != nil {
		return core.EngineConfig{}, err
	}
	mode, err := core.ParseConnectionMode(p.Mode)
	if err != nil {
		return core.EngineConfig{}, err
	}

	cfg := core.EngineConfig{
		Family:          family,
		Mode:            mode,
		Host:            p.Host,
		Port:            p.Port,
		Database:        p.Database,
		Username:        p.Username,
		Password:        password,
		ApplicationName: p.ApplicationName,
		Role:            p.Role,
		TLS:             p.TLS,
		Options:         p.Options,
		Params:          p.Params,
		FixturePath:     p.FixturePath,
		Timeouts: core.Timeouts{
			Connect: pick(p.Timeouts.Connect, net.ConnectTimeout),
			Query:   pick(p.Timeouts.Query, net.QueryTimeout),
			Read:    pick(p.Timeouts.Read, net.ReadTimeout),
			Write:   pick(p.Timeouts.Write, net.WriteTimeout),
		},
		StreamWindowBytes: net.StreamWindowBytes,
		StreamChunkBytes:  net.StreamChunkBytes,
	}
	if mode == core.ModeIPC && p.IPCPath != "" {
		cfg.Host = p.IPCPath
	}
	if cfg.Port == 0 {
		cfg.Port = family.DefaultPort()
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = DefaultApplicationName
	}
	if cfg.FixturePath == "" && family == core.EngineFixture {
		cfg.FixturePath = fixture.DefaultPath
	}
	return cfg, nil
}

func pick(override, def time.Duration) time.Duration {
	if override != 0 {
		return override
	}
	return def
}
