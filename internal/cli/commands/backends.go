package commands

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/spf13/cobra"
)

type backendInfo struct {
	Name        string   `json:"name"`
	Available   bool     `json:"available"`
	DefaultPort int      `json:"default_port,omitempty"`
	Aliases     []string `json:"aliases"`
}

func listBackends() []backendInfo {
	families := core.EngineFamilies()
	out := make([]backendInfo, 0, len(families))
	for _, f := range families {
		out = append(out, backendInfo{
			Name:        f.String(),
			Available:   adapter.IsRegistered(f),
			DefaultPort: f.DefaultPort(),
			Aliases:     f.Aliases(),
		})
	}
	return out
}

// NewBackendsCommand creates the backends command.
func NewBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List engine families and whether an adapter is built in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			backends := listBackends()
			if cmdCtx.Cfg.OutputFormat == "json" {
				return renderJSON(cmdCtx.Out, backends)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmdCtx.Out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Backend", "Available", "Default Port", "Aliases"})
			for _, b := range backends {
				port := ""
				if b.DefaultPort > 0 {
					port = strconv.Itoa(b.DefaultPort)
				}
				t.AppendRow(table.Row{b.Name, yesNo(b.Available), port, strings.Join(b.Aliases, ", ")})
			}
			t.Render()
			return nil
		},
	}
}
