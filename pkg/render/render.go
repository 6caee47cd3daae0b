// Package render prints statement results, schema, history and example queries as aligned text tables.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/umputun/sqltes/pkg/config"
	"github.com/umputun/sqltes/pkg/inspector"
)

// Printer writes human-readable output to Out. Monochrome disables colors.
type Printer struct {
	Out        io.Writer
	Monochrome bool
}

// Result prints a read result as a table or a write status line.
func (p *Printer) Result(res inspector.Result) {
	if res.Kind == inspector.KindWrite {
		msg := "command executed successfully"
		if res.RowsAffected > 0 {
			msg += fmt.Sprintf(", %s affected", plural(res.RowsAffected, "row"))
		}
		p.line(color.FgGreen, msg)
		return
	}
	if res.Empty() {
		p.line(color.FgYellow, "no results returned")
		return
	}
	p.grid(res.Columns, cells(res))
	fmt.Fprintf(p.Out, "(%s)\n", plural(int64(len(res.Rows)), "row"))
}

// Table prints content of a single table.
func (p *Printer) Table(name string, res inspector.Result) {
	if res.Empty() {
		p.line(color.FgYellow, fmt.Sprintf("table %q is empty", name))
		return
	}
	p.line(color.FgHiWhite, fmt.Sprintf("data in %q table:", name))
	p.grid(res.Columns, cells(res))
}

// Schema prints every table with its columns.
func (p *Printer) Schema(schema inspector.Schema) {
	if len(schema) == 0 {
		p.line(color.FgYellow, "no tables in the database")
		return
	}
	for i, t := range schema {
		if i > 0 {
			fmt.Fprintln(p.Out)
		}
		p.line(color.FgHiWhite, "table: "+t.Name)
		rows := make([][]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			rows = append(rows, []string{c.Name, c.Type})
		}
		p.grid([]string{"column", "type"}, rows)
	}
}

// History prints executed statements, oldest first.
func (p *Printer) History(entries []string) {
	if len(entries) == 0 {
		p.line(color.FgYellow, "no queries executed yet")
		return
	}
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(p.Out)
		}
		p.line(color.FgCyan, fmt.Sprintf("#%d", i+1))
		fmt.Fprintln(p.Out, e)
	}
}

// Examples prints example queries grouped by level.
func (p *Printer) Examples(levels []config.Level) {
	for i, l := range levels {
		if i > 0 {
			fmt.Fprintln(p.Out)
		}
		p.line(color.FgHiWhite, l.Name+":")
		for j, q := range l.Queries {
			fmt.Fprintf(p.Out, "  %d. %s\n", j+1, q)
		}
	}
}

// Error prints err, statement errors get a hint about syntax and table names.
func (p *Printer) Error(err error) {
	msg := "error: " + err.Error()
	var stErr *inspector.StatementError
	if errors.As(err, &stErr) {
		msg += ", check SQL syntax or table names"
	}
	p.line(color.FgHiRed, msg)
}

// Info prints a plain message line.
func (p *Printer) Info(msg string) {
	p.line(color.FgHiWhite, msg)
}

func (p *Printer) line(attr color.Attribute, s string) {
	fmt.Fprintln(p.Out, p.colorize(attr, s))
}

// grid writes header and rows aligned in columns, the header line colorized.
func (p *Printer) grid(header []string, rows [][]string) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, l := range lines {
		l = strings.TrimRight(l, " ") // empty last cells leave padding behind
		if i == 0 {
			l = p.colorize(color.FgHiCyan, l)
		}
		fmt.Fprintln(p.Out, l)
	}
}

func (p *Printer) colorize(attr color.Attribute, s string) string {
	if p.Monochrome {
		return s
	}
	return color.New(attr).Sprint(s)
}

func cells(res inspector.Result) [][]string {
	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		row := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			row[i] = FormatValue(r[c])
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatValue returns printable text for a value returned by the driver.
func FormatValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		s = val
	case []byte:
		if !utf8.Valid(val) {
			return fmt.Sprintf("x'%X'", val)
		}
		s = string(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		s = fmt.Sprint(val)
	}
	return strings.NewReplacer("\n", `\n`, "\t", " ", "\r", "").Replace(s)
}

func plural(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
