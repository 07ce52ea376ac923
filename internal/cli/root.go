// Package cli provides the command-line interface for dbconn.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/dbconn/internal/cli/commands"
	"github.com/leapstack-labs/dbconn/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// skipConfig lists commands that run without loading configuration.
var skipConfig = map[string]bool{
	"help":       true,
	"completion": true,
	"__complete": true,
	"version":    true,
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbconn",
		Short: "dbconn - one client for many database engines",
		Long: `dbconn runs queries and transactions against interchangeable database
engines through one uniform adapter contract.

Connection profiles live in dbconn.yaml. Passwords are never stored there;
profiles name a credential reference resolved from the environment or the
OS keyring.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfig[cmd.Name()] {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := config.NewContext(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if cfg.FileUsed != "" {
				logger.Debug("using config file", "path", cfg.FileUsed)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dbconn.yaml)")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "Connection profile to use")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json|csv|md)")
	rootCmd.PersistentFlags().Bool("auto-commit", true, "Commit each statement automatically")
	rootCmd.PersistentFlags().Duration("connect-timeout", 0, "Connect timeout (0 keeps the configured value)")
	rootCmd.PersistentFlags().Duration("query-timeout", 0, "Per-query timeout (0 keeps the configured value)")
	rootCmd.PersistentFlags().String("credential-store", "", "Credential store (auto|env|keyring|none)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("profile", func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return cfg.ProfileNames(), cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("credential-store", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "env", "keyring", "none"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewCapsCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewBackendsCommand())
	rootCmd.AddCommand(commands.NewFixtureCommand())
	rootCmd.AddCommand(commands.NewPingCommand())
	rootCmd.AddCommand(commands.NewSecretCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for dbconn.

To load completions:

Bash:
  $ source <(dbconn completion bash)

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ dbconn completion zsh > "${fpath[1]}/_dbconn"

Fish:
  $ dbconn completion fish | source

PowerShell:
  PS> dbconn completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
