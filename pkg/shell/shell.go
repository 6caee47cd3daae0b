// Package shell implements an interactive loop reading SQL statements and dot commands.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/sqltes/pkg/config"
	"github.com/umputun/sqltes/pkg/inspector"
	"github.com/umputun/sqltes/pkg/render"
	"github.com/umputun/sqltes/pkg/sqlfmt"
)

const (
	prompt     = "sqltes> "
	contPrompt = "   ...> "
)

const helpText = `statements end with ';' or an empty line, trigger bodies end with 'END;'
.open NAME       load or create database NAME
.schema          show all tables with columns
.tables          list table names
.table NAME      show rows of table NAME
.history         show executed statements
.examples [LVL]  show example queries, optionally for a single level
.help            show this help
.quit, .exit     leave the shell`

// Shell reads statements from In and prints results with Printer.
// Prompt enables prompts, set it for interactive input only.
type Shell struct {
	Session *inspector.Session
	Printer *render.Printer
	Config  *config.Config
	In      io.Reader
	Prompt  bool
}

var errQuit = errors.New("quit")

// Run processes input until EOF, a quit command or ctx cancellation. A statement runs once its
// line ends with a terminating ';' or an empty line follows, unless a trigger body is still open.
// Statement errors are printed and don't stop the loop.
func (s *Shell) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var buf []string
	flush := func() {
		if len(buf) == 0 {
			return
		}
		s.execute(ctx, strings.Join(buf, "\n"))
		buf = buf[:0]
	}

	s.prompt(len(buf) > 0)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case len(buf) == 0 && strings.HasPrefix(trimmed, "."):
			if err := s.command(ctx, trimmed); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.Printer.Error(err)
			}
		case stringutils.IsBlank(line):
			if sqlfmt.Inspect(strings.Join(buf, "\n")).OpenBlock {
				buf = append(buf, line) // blank line inside a trigger body
				break
			}
			flush()
		default:
			buf = append(buf, line)
			if sqlfmt.Inspect(strings.Join(buf, "\n")).Terminated {
				flush()
			}
		}
		s.prompt(len(buf) > 0)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("can't read input: %w", err)
	}
	return nil
}

func (s *Shell) execute(ctx context.Context, stmt string) {
	res, err := s.Session.Execute(ctx, stmt)
	if err != nil {
		s.Printer.Error(err)
		return
	}
	s.Printer.Result(res)
}

// command runs a dot command, errQuit asks the loop to stop
func (s *Shell) command(ctx context.Context, line string) error {
	args := strings.Fields(line)
	log.Printf("[DEBUG] shell command %v", args)

	switch args[0] {
	case ".quit", ".exit":
		return errQuit
	case ".help":
		s.Printer.Info(helpText)
	case ".open":
		if len(args) < 2 {
			return errors.New("usage: .open NAME")
		}
		path, err := s.Session.OpenOrCreate(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		s.Printer.Info("connected to database: " + path)
	case ".schema":
		schema, err := s.Session.ListSchema(ctx)
		if err != nil {
			return err
		}
		s.Printer.Schema(schema)
	case ".tables":
		schema, err := s.Session.ListSchema(ctx)
		if err != nil {
			return err
		}
		if len(schema) == 0 {
			s.Printer.Info("no tables to display")
			return nil
		}
		s.Printer.Info(strings.Join(schema.Names(), "\n"))
	case ".table":
		if len(args) != 2 {
			return errors.New("usage: .table NAME")
		}
		res, err := s.Session.TableRows(ctx, args[1])
		if err != nil {
			return err
		}
		s.Printer.Table(args[1], res)
	case ".history":
		s.Printer.History(s.Session.History())
	case ".examples":
		if len(args) == 1 {
			s.Printer.Examples(s.Config.Examples)
			return nil
		}
		lvl, err := s.Config.Level(args[1])
		if err != nil {
			return fmt.Errorf("%w, known levels: %s", err, strings.Join(s.Config.LevelNames(), ", "))
		}
		s.Printer.Examples([]config.Level{lvl})
	default:
		return fmt.Errorf("unknown command %q, try .help", args[0])
	}
	return nil
}

func (s *Shell) prompt(continued bool) {
	if !s.Prompt {
		return
	}
	if continued {
		fmt.Fprint(s.Printer.Out, contPrompt)
		return
	}
	fmt.Fprint(s.Printer.Out, prompt)
}
