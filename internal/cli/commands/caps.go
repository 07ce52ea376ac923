package commands

import (
	"fmt"

	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/spf13/cobra"
)

// NewCapsCommand creates the caps command.
func NewCapsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Connect and print the backend capability snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			o, p, err := cmdCtx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = o.Close() }()

			if cmdCtx.Cfg.OutputFormat == "json" {
				return renderJSON(cmdCtx.Out, o.Capabilities())
			}
			title := fmt.Sprintf("%s (%s)", p.Name, o.BackendName())
			return renderPairs(cmdCtx.Out, title, capabilityPairs(o.Capabilities()), cmdCtx.Cfg.OutputFormat)
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "status [server|connection|database|statistics]",
		Short:     "Connect and print a status snapshot",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"server", "connection", "database", "statistics"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := core.StatusServerInfo
			if len(args) == 1 {
				var err error
				if kind, err = core.ParseStatusKind(args[0]); err != nil {
					return err
				}
			}

			cmdCtx := NewCommandContext(cmd)
			o, _, err := cmdCtx.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = o.Close() }()

			snap, err := o.FetchStatus(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return renderPairs(cmdCtx.Out, kind.String(), statusPairs(snap), cmdCtx.Cfg.OutputFormat)
		},
	}
}
