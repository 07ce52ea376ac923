// Package config loads dbconn configuration and resolves connection profiles.
// It is decoupled from the CLI so other front ends can share profile files.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
)

// Config holds all dbconn configuration options.
type Config struct {
	Profile      string                          `koanf:"profile"`
	Profiles     map[string]orchestrator.Profile `koanf:"profiles"`
	Credentials  CredentialsConfig               `koanf:"credentials"`
	Network      orchestrator.NetworkOptions     `koanf:"network"`
	AutoCommit   bool                            `koanf:"auto_commit"`
	Verbose      bool                            `koanf:"verbose"`
	OutputFormat string                          `koanf:"output"`

	// FileUsed is the config file that was loaded, if any.
	FileUsed string `koanf:"-"`
}

// CredentialsConfig selects the credential store handed to the orchestrator.
type CredentialsConfig struct {
	Store          string `koanf:"store"` // auto, env, keyring, none
	KeyringService string `koanf:"keyring_service"`
}

// UnknownProfileError is returned when a profile name is not configured.
type UnknownProfileError struct {
	Name      string
	Available []string
}

func (e *UnknownProfileError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown profile %q (no profiles configured)", e.Name)
	}
	return fmt.Sprintf("unknown profile %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolveProfile returns the named profile. An empty name selects the default
// profile, or the only profile when exactly one is configured.
func (c *Config) ResolveProfile(name string) (orchestrator.Profile, error) {
	if name == "" {
		name = c.Profile
	}
	if name == "" {
		if len(c.Profiles) != 1 {
			return orchestrator.Profile{}, fmt.Errorf("no profile selected (use --profile or set profile in %s)", ConfigFileName)
		}
		name = c.ProfileNames()[0]
	}
	p, ok := c.Profiles[name]
	if !ok {
		return orchestrator.Profile{}, &UnknownProfileError{Name: name, Available: c.ProfileNames()}
	}
	return p, nil
}

// Validate checks that every profile names a known backend and mode and that
// the output format is supported.
func (c *Config) Validate() error {
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("unsupported output format %q (want one of %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		if _, err := core.ParseEngineFamily(p.Backend, p.FixturePath); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		if _, err := core.ParseConnectionMode(p.Mode); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return nil
}
