package duckdb

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds the duckdb-specific profile params, decoded from
// core.EngineConfig.Params.
type Params struct {
	// ReadOnly opens the main database with access_mode=read_only.
	ReadOnly bool `mapstructure:"read_only"`

	Extensions []string          `mapstructure:"extensions"`
	Settings   map[string]string `mapstructure:"settings"`

	// Attach lists extra database files made visible in the session.
	Attach []AttachConfig `mapstructure:"attach"`

	// Secrets are registered with CREATE SECRET for object storage access.
	Secrets []SecretConfig `mapstructure:"secrets"`
}

// AttachConfig names one database file attached under an alias.
type AttachConfig struct {
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"`
	ReadOnly bool   `mapstructure:"read_only"`
}

// SecretConfig is one CREATE SECRET entry. Type is s3, gcs, r2, azure and
// so on; Scope is a string or a list of strings.
type SecretConfig struct {
	Type     string `mapstructure:"type"`
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region,omitempty"`
	Scope    any    `mapstructure:"scope,omitempty"`
	KeyID    string `mapstructure:"key_id,omitempty"`
	Secret   string `mapstructure:"secret,omitempty"`
	Endpoint string `mapstructure:"endpoint,omitempty"`
	URLStyle string `mapstructure:"url_style,omitempty"`
	UseSSL   *bool  `mapstructure:"use_ssl,omitempty"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	for i, at := range p.Attach {
		if at.Name == "" || at.Path == "" {
			return nil, fmt.Errorf("invalid duckdb params: attach[%d] needs name and path", i)
		}
	}
	for i, sec := range p.Secrets {
		if sec.Type == "" {
			return nil, fmt.Errorf("invalid duckdb params: secrets[%d] needs a type", i)
		}
	}
	return p, nil
}

// dsn returns the driver DSN for the main database file.
func (p *Params) dsn(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if p.ReadOnly && path != ":memory:" {
		return path + "?access_mode=read_only"
	}
	return path
}

// setupStatements returns the statements that apply p to a new session.
func (p *Params) setupStatements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	for _, key := range slices.Sorted(maps.Keys(p.Settings)) {
		stmts = append(stmts, fmt.Sprintf("SET %s = %s", key, quote(p.Settings[key])))
	}
	for _, at := range p.Attach {
		stmt := fmt.Sprintf("ATTACH %s AS %s", quote(at.Path), quoteIdent(at.Name))
		if at.ReadOnly {
			stmt += " (READ_ONLY)"
		}
		stmts = append(stmts, stmt)
	}
	for _, s := range p.Secrets {
		stmts = append(stmts, buildCreateSecretSQL(s))
	}
	return stmts
}

func buildCreateSecretSQL(cfg SecretConfig) string {
	opts := []string{"TYPE " + cfg.Type}
	if cfg.Provider != "" {
		opts = append(opts, "PROVIDER "+cfg.Provider)
	}
	if cfg.Region != "" {
		opts = append(opts, "REGION "+quote(cfg.Region))
	}
	if cfg.KeyID != "" {
		opts = append(opts, "KEY_ID "+quote(cfg.KeyID))
	}
	if cfg.Secret != "" {
		opts = append(opts, "SECRET "+quote(cfg.Secret))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, "ENDPOINT "+quote(cfg.Endpoint))
	}
	if cfg.URLStyle != "" {
		opts = append(opts, "URL_STYLE "+quote(cfg.URLStyle))
	}
	if cfg.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *cfg.UseSSL))
	}
	if scope := scopeSQL(cfg.Scope); scope != "" {
		opts = append(opts, "SCOPE "+scope)
	}
	return "CREATE SECRET (\n    " + strings.Join(opts, ",\n    ") + "\n)"
}

func scopeSQL(scope any) string {
	var items []string
	switch s := scope.(type) {
	case nil:
		return ""
	case string:
		return quote(s)
	case []string:
		items = s
	case []any:
		for _, v := range s {
			items = append(items, fmt.Sprint(v))
		}
	default:
		return quote(fmt.Sprint(s))
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = quote(item)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
