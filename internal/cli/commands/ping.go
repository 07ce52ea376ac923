package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentPings bounds how many profiles connect at once.
const maxConcurrentPings = 8

type pingResult struct {
	Profile string        `json:"profile"`
	Backend string        `json:"backend,omitempty"`
	Version string        `json:"server_version,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// NewPingCommand creates the ping command.
func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping [profile]...",
		Short: "Connect to profiles concurrently and report reachability",
		Long: `Connect to each named profile (all configured profiles by default),
report the backend and server version, then disconnect.

Exits with an error when any profile fails to connect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			names := args
			if len(names) == 0 {
				names = cmdCtx.Cfg.ProfileNames()
			}
			if len(names) == 0 {
				return fmt.Errorf("no profiles configured")
			}

			results, err := pingProfiles(cmd.Context(), cmdCtx, names)
			if err != nil {
				return err
			}

			if cmdCtx.Cfg.OutputFormat == "json" {
				if err := renderJSON(cmdCtx.Out, results); err != nil {
					return err
				}
			} else {
				renderPingTable(cmdCtx, results)
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d profiles failed", failed, len(results))
			}
			return nil
		},
	}
}

// pingProfiles connects to every profile on its own orchestrator. Connection
// failures are reported per profile; only configuration errors abort.
func pingProfiles(ctx context.Context, cmdCtx *CommandContext, names []string) ([]pingResult, error) {
	profiles := make([]orchestrator.Profile, len(names))
	for i, name := range names {
		p, err := cmdCtx.Cfg.ResolveProfile(name)
		if err != nil {
			return nil, err
		}
		profiles[i] = p
	}

	results := make([]pingResult, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPings)
	for i, p := range profiles {
		g.Go(func() error {
			o, err := cmdCtx.NewOrchestrator()
			if err != nil {
				return err
			}
			defer func() { _ = o.Close() }()

			start := time.Now()
			err = o.Connect(gctx, p)
			r := pingResult{Profile: p.Name, Elapsed: time.Since(start).Round(time.Millisecond)}
			if err != nil {
				r.Error = err.Error()
				cmdCtx.Logger.Debug("ping failed", "profile", p.Name, "error", err)
			} else {
				r.Backend = o.BackendName()
				r.Version = o.Capabilities().ServerVersion
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func renderPingTable(cmdCtx *CommandContext, results []pingResult) {
	t := table.NewWriter()
	t.SetOutputMirror(cmdCtx.Out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Profile", "Status", "Backend", "Version", "Time"})
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		t.AppendRow(table.Row{r.Profile, status, r.Backend, r.Version, r.Elapsed})
	}
	t.Render()
}
