package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	jsoniter "github.com/json-iterator/go"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func renderResult(w io.Writer, res *core.QueryResult, format string) error {
	if len(res.Columns) == 0 {
		return renderCommand(w, res, format)
	}

	cols := res.ColumnNames()
	switch format {
	case "json":
		return renderJSON(w, rowMaps(cols, res.Rows))
	case "csv":
		return renderCSV(w, cols, res.Rows)
	case "md", "markdown":
		return renderMarkdown(w, cols, res.Rows)
	default:
		return renderTable(w, cols, res)
	}
}

// renderCommand reports a statement that returned no result set.
func renderCommand(w io.Writer, res *core.QueryResult, format string) error {
	if format == "json" {
		return renderJSON(w, map[string]any{
			"command_tag":   res.CommandTag,
			"rows_affected": res.RowsAffected,
		})
	}
	if res.CommandTag != "" {
		_, _ = fmt.Fprintln(w, res.CommandTag)
		return nil
	}
	_, _ = fmt.Fprintf(w, "(%d rows affected)\n", res.RowsAffected)
	return nil
}

func renderTable(w io.Writer, cols []string, res *core.QueryResult) error {
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range res.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = formatValue(v)
		}
		t.AppendRow(r)
	}

	t.Render()
	if res.Stats.Truncated {
		_, _ = fmt.Fprintf(w, "(%d rows, truncated)\n", len(res.Rows))
		return nil
	}
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rowMaps(cols []string, rows [][]core.Value) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			if i >= len(row) || row[i].IsNull {
				m[col] = nil
				continue
			}
			m[col] = formatValue(row[i])
		}
		out = append(out, m)
	}
	return out
}

func renderCSV(w io.Writer, cols []string, rows [][]core.Value) error {
	header := make([]string, len(cols))
	for i, col := range cols {
		header[i] = escapeCSV(col)
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, ","))

	for _, row := range rows {
		values := make([]string, len(row))
		for i, v := range row {
			if v.IsNull {
				continue
			}
			values[i] = escapeCSV(formatValue(v))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func renderMarkdown(w io.Writer, cols []string, rows [][]core.Value) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = strings.ReplaceAll(formatValue(v), "|", `\|`)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

// formatValue renders a cell. Binary cells without a text form print as
// \x-prefixed hex.
func formatValue(v core.Value) string {
	if v.IsNull {
		return "NULL"
	}
	if v.Text == "" && len(v.Raw) > 0 {
		return `\x` + hex.EncodeToString(v.Raw)
	}
	return v.Text
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func renderMessages(w io.Writer, msgs []core.Message) {
	for _, m := range msgs {
		_, _ = fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(m.Severity), m.Message)
		if m.Detail != "" {
			_, _ = fmt.Fprintf(w, "DETAIL: %s\n", m.Detail)
		}
	}
}

// renderPairs prints a two-column key/value listing.
func renderPairs(w io.Writer, title string, pairs [][2]string, format string) error {
	if format == "json" {
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			m[p[0]] = p[1]
		}
		return renderJSON(w, m)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, p := range pairs {
		t.AppendRow(table.Row{p[0], p[1]})
	}
	if format == "md" || format == "markdown" {
		t.RenderMarkdown()
		return nil
	}
	if format == "csv" {
		t.RenderCSV()
		return nil
	}
	t.Render()
	return nil
}

func statusPairs(s *core.StatusSnapshot) [][2]string {
	pairs := make([][2]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		pairs = append(pairs, [2]string{e.Key, e.Value})
	}
	return pairs
}

// capabilityPairs lists the capability snapshot in a stable order.
func capabilityPairs(c core.Capabilities) [][2]string {
	flag := func(name string, v bool) [2]string {
		return [2]string{name, yesNo(v)}
	}
	return [][2]string{
		{"server_type", c.ServerType},
		{"server_version", c.ServerVersion},
		flag("cancel", c.Cancel),
		flag("transactions", c.Transactions),
		flag("paging", c.Paging),
		flag("savepoints", c.Savepoints),
		flag("explain", c.Explain),
		flag("streaming", c.Streaming),
		flag("prepared_statements", c.PreparedStatements),
		flag("statement_cache", c.StatementCache),
		flag("copy_in", c.CopyIn),
		flag("copy_out", c.CopyOut),
		flag("copy_both", c.CopyBoth),
		flag("copy_binary", c.CopyBinary),
		flag("copy_text", c.CopyText),
		flag("notifications", c.Notifications),
		flag("status", c.Status),
		flag("ddl_extract", c.DDLExtract),
		flag("dependencies", c.Dependencies),
		flag("constraints", c.Constraints),
		flag("indexes", c.Indexes),
		flag("user_admin", c.UserAdmin),
		flag("role_admin", c.RoleAdmin),
		flag("group_admin", c.GroupAdmin),
		flag("job_scheduler", c.JobScheduler),
		flag("domains", c.Domains),
		flag("sequences", c.Sequences),
		flag("triggers", c.Triggers),
		flag("procedures", c.Procedures),
		flag("views", c.Views),
		flag("temp_tables", c.TempTables),
		flag("multiple_databases", c.MultipleDatabases),
		flag("tablespaces", c.Tablespaces),
		flag("schemas", c.Schemas),
		flag("backup", c.Backup),
		flag("import_export", c.ImportExport),
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
