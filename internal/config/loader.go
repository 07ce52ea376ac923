package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "dbconn.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "dbconn.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: DBCONN_NETWORK__QUERY_TIMEOUT sets network.query_timeout.
const EnvPrefix = "DBCONN_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names that do not follow the kebab-to-snake rule.
var flagKeys = map[string]string{
	"connect-timeout":  "network.connect_timeout",
	"query-timeout":    "network.query_timeout",
	"credential-store": "credentials.store",
}

// skipFlags are persistent flags that are not configuration keys.
var skipFlags = map[string]bool{
	"config": true,
	"help":   true,
}

// configIn returns the config file in dir, or "" when there is none.
func configIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigFile finds the config file to use.
// Priority: explicit path > nearest dbconn.yaml upward from CWD > user config dir.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if dir, err := os.Getwd(); err == nil {
		for i := 0; i < maxUpwardSearchLevels; i++ {
			if found := configIn(dir); found != "" {
				return found
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return configIn(filepath.Join(dir, "dbconn"))
	}
	return ""
}

// Load loads configuration from defaults, file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Load environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (only the ones explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || skipFlags[f.Name] {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = used
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]orchestrator.Profile{}
	}
	applyProfileDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandProfileEnvVars expands environment variables in addressing fields.
// Passwords never live in profiles; they go through the credential reference.
func expandProfileEnvVars(p *orchestrator.Profile) {
	p.Host = expandEnvVars(p.Host)
	p.IPCPath = expandEnvVars(p.IPCPath)
	p.Database = expandEnvVars(p.Database)
	p.Username = expandEnvVars(p.Username)
	p.FixturePath = expandEnvVars(p.FixturePath)
}
