// Package commands implements the dbconn subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/leapstack-labs/dbconn/internal/config"
	"github.com/leapstack-labs/dbconn/pkg/credentials"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
	"github.com/spf13/cobra"

	// Register every engine adapter.
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/firebird"
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/fixture"
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/dbconn/pkg/adapters/sqlite"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
	ErrOut io.Writer
}

// NewCommandContext collects the config and logger stored by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		cfg = &config.Config{
			AutoCommit:   true,
			OutputFormat: config.DefaultOutput,
			Network:      orchestrator.DefaultNetworkOptions(),
			Credentials: config.CredentialsConfig{
				Store:          config.DefaultCredentialKind,
				KeyringService: config.DefaultKeyringService,
			},
		}
	}
	return &CommandContext{
		Cfg:    cfg,
		Logger: config.GetLogger(cmd.Context()),
		Out:    cmd.OutOrStdout(),
		ErrOut: cmd.ErrOrStderr(),
	}
}

// Credentials builds the configured credential store.
func (c *CommandContext) Credentials() (credentials.Resolver, error) {
	return credentials.NewFromConfig(c.Cfg.Credentials.Store, c.Cfg.Credentials.KeyringService)
}

// NewOrchestrator builds an orchestrator wired to the configured credential
// store, network options and auto-commit mode.
func (c *CommandContext) NewOrchestrator() (*orchestrator.Orchestrator, error) {
	creds, err := c.Credentials()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(
		orchestrator.WithLogger(c.Logger),
		orchestrator.WithCredentials(creds),
		orchestrator.WithNetworkOptions(c.Cfg.Network),
		orchestrator.WithAutoCommit(c.Cfg.AutoCommit),
	), nil
}

// Open connects a new orchestrator to the selected profile. Callers must Close
// the returned orchestrator.
func (c *CommandContext) Open(ctx context.Context) (*orchestrator.Orchestrator, orchestrator.Profile, error) {
	p, err := c.Cfg.ResolveProfile("")
	if err != nil {
		return nil, p, err
	}
	o, err := c.NewOrchestrator()
	if err != nil {
		return nil, p, err
	}
	if err := o.Connect(ctx, p); err != nil {
		_ = o.Close()
		return nil, p, fmt.Errorf("connect %s: %w", p.Name, err)
	}
	c.Logger.Debug("connected", "profile", p.Name, "backend", o.BackendName())
	return o, p, nil
}
