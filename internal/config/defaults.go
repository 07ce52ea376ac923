package config

import (
	"github.com/leapstack-labs/dbconn/pkg/credentials"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
)

// Default configuration values.
const (
	DefaultOutput         = "table"
	DefaultCredentialKind = "auto"
	DefaultKeyringService = credentials.DefaultKeyringService
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"table", "json", "csv", "md"}

// defaults returns the lowest configuration layer as a flat koanf map.
func defaults() map[string]any {
	net := orchestrator.DefaultNetworkOptions()
	return map[string]any{
		"profile":                     "",
		"auto_commit":                 true,
		"verbose":                     false,
		"output":                      DefaultOutput,
		"credentials.store":           DefaultCredentialKind,
		"credentials.keyring_service": DefaultKeyringService,
		"network.connect_timeout":     net.ConnectTimeout,
		"network.query_timeout":       net.QueryTimeout,
		"network.read_timeout":        net.ReadTimeout,
		"network.write_timeout":       net.WriteTimeout,
		"network.stream_window_bytes": net.StreamWindowBytes,
		"network.stream_chunk_bytes":  net.StreamChunkBytes,
	}
}

// applyProfileDefaults fills each profile's name from its map key.
func applyProfileDefaults(c *Config) {
	for name, p := range c.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		expandProfileEnvVars(&p)
		c.Profiles[name] = p
	}
}
