package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/leapstack-labs/dbconn/pkg/jobs"
	"github.com/leapstack-labs/dbconn/pkg/orchestrator"
)

// repl is an interactive session over one connected orchestrator.
type repl struct {
	o       *orchestrator.Orchestrator
	profile string
	out     io.Writer
	errOut  io.Writer
	format  string
	maxRows int

	// interrupts cancels the running query. Nil disables it.
	interrupts <-chan os.Signal
}

func runQueryREPL(ctx context.Context, cmdCtx *CommandContext, o *orchestrator.Orchestrator, p orchestrator.Profile, opts *QueryOptions) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	r := &repl{
		o:          o,
		profile:    p.Name,
		out:        cmdCtx.Out,
		errOut:     cmdCtx.ErrOut,
		format:     opts.Format,
		maxRows:    opts.MaxRows,
		interrupts: sigCh,
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt(),
		HistoryFile:     historyFile(),
		AutoComplete:    newDotCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(r.out, "dbconn REPL (profile: %s, backend: %s)\n", p.Name, o.BackendName())
	_, _ = fmt.Fprintln(r.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(r.out)

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt(r.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if multiLineBuffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := r.dot(ctx, line); quit {
				break
			}
			rl.SetPrompt(r.prompt())
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt("    ...> ")
			continue
		}

		query := strings.TrimSuffix(multiLineBuffer.String(), ";")
		multiLineBuffer.Reset()

		drain(sigCh)
		if err := r.exec(ctx, query); err != nil {
			_, _ = fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(r.out)
		rl.SetPrompt(r.prompt())
	}

	return nil
}

// prompt shows the profile and marks an open transaction with '*'.
func (r *repl) prompt() string {
	if r.o.IsInTransaction() {
		return r.profile + "*> "
	}
	return r.profile + "> "
}

// exec runs sql on the job queue and waits for it. An interrupt cancels the
// job, which interrupts the adapter's in-flight call.
func (r *repl) exec(ctx context.Context, sql string) error {
	type outcome struct {
		res *core.QueryResult
		err error
	}
	done := make(chan outcome, 1)
	h := r.o.ExecuteQueryWithOptionsAsync(ctx, sql, core.QueryOptions{MaxRows: r.maxRows}, func(res *core.QueryResult, err error) {
		done <- outcome{res: res, err: err}
	})

	for {
		select {
		case out := <-done:
			if errors.Is(out.err, jobs.ErrCanceled) {
				_, _ = fmt.Fprintln(r.errOut, "query canceled")
				return nil
			}
			if out.err != nil {
				return out.err
			}
			renderMessages(r.errOut, out.res.Messages)
			return renderResult(r.out, out.res, r.format)
		case <-r.interrupts:
			h.Cancel()
		}
	}
}

// dot runs a dot-command and reports whether the REPL should exit.
func (r *repl) dot(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(r.out)

	case ".begin":
		err = r.o.BeginTransaction(ctx)

	case ".commit":
		err = r.o.Commit(ctx)

	case ".rollback":
		err = r.o.Rollback(ctx)

	case ".autocommit":
		if len(args) == 0 {
			_, _ = fmt.Fprintf(r.out, "autocommit is %s\n", onOff(r.o.IsAutoCommit()))
			break
		}
		switch strings.ToLower(args[0]) {
		case "on":
			err = r.o.SetAutoCommit(ctx, true)
		case "off":
			err = r.o.SetAutoCommit(ctx, false)
		default:
			_, _ = fmt.Fprintln(r.errOut, "Usage: .autocommit on|off")
		}

	case ".state":
		_, _ = fmt.Fprintln(r.out, r.o.State())

	case ".caps":
		err = renderPairs(r.out, r.o.BackendName(), capabilityPairs(r.o.Capabilities()), r.format)

	case ".status":
		kind := core.StatusServerInfo
		if len(args) > 0 {
			kind, err = core.ParseStatusKind(args[0])
			if err != nil {
				break
			}
		}
		var snap *core.StatusSnapshot
		snap, err = r.o.FetchStatus(ctx, kind)
		if err == nil {
			err = renderPairs(r.out, kind.String(), statusPairs(snap), r.format)
		}

	case ".listen":
		if len(args) == 0 {
			_, _ = fmt.Fprintln(r.errOut, "Usage: .listen <channel> [filter]")
			break
		}
		filter := ""
		if len(args) > 1 {
			filter = strings.Join(args[1:], " ")
		}
		if err = r.o.Subscribe(ctx, args[0], filter); err == nil {
			_, _ = fmt.Fprintf(r.out, "listening on %s\n", args[0])
		}

	case ".unlisten":
		if len(args) == 0 {
			_, _ = fmt.Fprintln(r.errOut, "Usage: .unlisten <channel>")
			break
		}
		err = r.o.Unsubscribe(ctx, args[0])

	case ".notify":
		var ev *core.NotificationEvent
		ev, err = r.o.FetchNotification(ctx)
		switch {
		case err != nil:
		case ev == nil:
			_, _ = fmt.Fprintln(r.out, "(no notifications)")
		default:
			_, _ = fmt.Fprintf(r.out, "%s: %s\n", ev.Channel, ev.Payload)
		}

	case ".cancel":
		if err = r.o.Cancel(); err == nil {
			_, _ = fmt.Fprintln(r.out, "cancel requested")
		}

	case ".clear":
		_, _ = fmt.Fprint(r.out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(r.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}

	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "Error: %v\n", err)
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func drain(ch <-chan os.Signal) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                      Show this help message
  .begin                     Open a transaction
  .commit                    Commit the open transaction
  .rollback                  Roll back the open transaction
  .autocommit [on|off]       Show or switch auto-commit mode
  .state                     Show the connection state
  .caps                      Show backend capabilities
  .status [kind]             Show server, connection, database or statistics status
  .listen <channel> [filter] Subscribe to notifications
  .unlisten <channel>        Drop a subscription
  .notify                    Fetch one pending notification
  .cancel                    Request cancellation of the running statement
  .clear                     Clear the screen
  .quit / .exit              Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Ctrl-C while a query runs cancels it
  - Use arrow keys to navigate history
`
	_, _ = fmt.Fprintln(w, help)
}

// historyFile returns the REPL history path, or "" when no cache dir exists.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "dbconn")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ""
	}
	return filepath.Join(dir, "query_history")
}

func newDotCompleter() *readline.PrefixCompleter {
	kinds := make([]readline.PrefixCompleterInterface, 0, 4)
	for _, k := range []core.StatusKind{core.StatusServerInfo, core.StatusConnectionInfo, core.StatusDatabaseInfo, core.StatusStatistics} {
		kinds = append(kinds, readline.PcItem(k.String()))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".begin"),
		readline.PcItem(".commit"),
		readline.PcItem(".rollback"),
		readline.PcItem(".autocommit", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem(".state"),
		readline.PcItem(".caps"),
		readline.PcItem(".status", kinds...),
		readline.PcItem(".listen"),
		readline.PcItem(".unlisten"),
		readline.PcItem(".notify"),
		readline.PcItem(".cancel"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
