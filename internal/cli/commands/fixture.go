package commands

import (
	"fmt"

	"github.com/leapstack-labs/dbconn/pkg/adapters/fixture"
	"github.com/spf13/cobra"
)

// NewFixtureCommand creates the fixture command group.
func NewFixtureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Work with fixture documents",
	}
	cmd.AddCommand(newFixtureCheckCommand())
	return cmd
}

func newFixtureCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate fixture documents",
		Long: `Parse each fixture document (JSON or YAML) and report its rules.

Exits with an error when any document fails to load.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				f, err := fixture.Load(path)
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
					continue
				}
				_, _ = fmt.Fprintf(out, "ok   %s: %d rules, %d notifications, %d status kinds\n",
					path, len(f.Rules), len(f.Notifications), len(f.Status))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d fixtures failed to load", failed, len(args))
			}
			return nil
		},
	}
}
