package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format  string
	Input   string
	MaxRows int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against a profile",
		Long: `Run SQL against the selected connection profile.

SQL is taken from the arguments, from --input, or from piped stdin.
When invoked without SQL on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  dbconn query -p local "SELECT * FROM orders LIMIT 10"

  # Read SQL from a file and print JSON
  dbconn query -p local --input report.sql --format json

  # Interactive mode
  dbconn query -p local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default from config)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "Stop after this many rows (0 for no limit)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContext(cmd)
	if opts.Format == "" {
		opts.Format = cmdCtx.Cfg.OutputFormat
	}

	var sqlQuery string
	interactive := false
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		interactive = true
	}

	ctx := cmd.Context()
	o, p, err := cmdCtx.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()

	if interactive {
		return runQueryREPL(ctx, cmdCtx, o, p, opts)
	}
	return executeAndRender(ctx, cmdCtx, o, sqlQuery, opts)
}

func executeAndRender(ctx context.Context, cmdCtx *CommandContext, o *orchestrator.Orchestrator, sqlQuery string, opts *QueryOptions) error {
	if strings.TrimSpace(sqlQuery) == "" {
		return fmt.Errorf("no SQL given")
	}

	res, err := o.ExecuteQueryWithOptions(ctx, sqlQuery, core.QueryOptions{MaxRows: opts.MaxRows})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	renderMessages(cmdCtx.ErrOut, res.Messages)
	if err := renderResult(cmdCtx.Out, res, opts.Format); err != nil {
		return err
	}

	// Outside auto-commit a one-shot query would otherwise be rolled back on
	// disconnect.
	if o.IsInTransaction() {
		if err := o.Commit(ctx); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
