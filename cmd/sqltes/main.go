package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/sqltes/pkg/config"
	"github.com/umputun/sqltes/pkg/inspector"
	"github.com/umputun/sqltes/pkg/render"
	"github.com/umputun/sqltes/pkg/server"
	"github.com/umputun/sqltes/pkg/shell"
)

type options struct {
	Config  string `short:"c" long:"config" env:"SQLTES_CONFIG" description:"config file, yaml or toml"`
	DataDir string `short:"d" long:"data" env:"SQLTES_DATA" description:"directory for database files"`
	DB      string `long:"db" env:"SQLTES_DB" description:"database to open"`

	ExecCmd struct {
		File    string `short:"f" long:"file" description:"read a script from file"`
		History bool   `long:"history" description:"print history after execution"`

		PositionalArgs struct {
			Statements []string `positional-arg-name:"statement" description:"sql statements to execute"`
		} `positional-args:"yes" positional-optional:"yes"`
	} `command:"exec" description:"execute sql statements"`

	SchemaCmd struct{} `command:"schema" description:"show tables and columns"`

	TableCmd struct {
		PositionalArgs struct {
			Name string `positional-arg-name:"name" description:"table name"`
		} `positional-args:"yes" required:"yes"`
	} `command:"table" description:"show table content"`

	ExamplesCmd struct {
		PositionalArgs struct {
			Level string `positional-arg-name:"level" description:"example level"`
		} `positional-args:"yes" positional-optional:"yes"`
	} `command:"examples" description:"show example queries"`

	ShellCmd struct{} `command:"shell" description:"interactive shell, default command"`

	ServeCmd struct {
		Listen string `short:"l" long:"listen" env:"SQLTES_LISTEN" description:"listen address"`
		Watch  bool   `long:"watch" description:"log changes in data directory"`

		SessionTTL  time.Duration `long:"session-ttl" env:"SQLTES_SESSION_TTL" default:"30m" description:"close idle sessions after"`
		MaxSessions int           `long:"max-sessions" env:"SQLTES_MAX_SESSIONS" default:"100" description:"max open sessions"`
	} `command:"serve" description:"run web inspector"`

	NoColor bool `long:"no-color" env:"SQLTES_NO_COLOR" description:"disable colorized output"`
	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

// streams are input and output of the command, interactive means a terminal on both sides
type streams struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			exitFunc(0)
			return
		}
		exitFunc(1) // can be redefined in tests
		return
	}
	if opts.Version {
		fmt.Printf("sqltes %s\n", revision)
		return
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		opts.NoColor = true
	}
	color.NoColor = opts.NoColor
	setupLog(opts.Dbg, opts.NoColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, p, opts, streams{in: os.Stdin, out: os.Stdout, interactive: interactive}); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Fprintf(os.Stderr, "failed, %v\n", formatErrorString(err.Error()))
		cancel()
		exitFunc(1)
	}
}

func run(ctx context.Context, p *flags.Parser, opts options, st streams) error {
	conf, err := config.New(opts.Config, &config.Overrides{DataDir: opts.DataDir, DefaultDB: opts.DB, Listen: opts.ServeCmd.Listen})
	if err != nil {
		return fmt.Errorf("can't load config: %w", err)
	}

	if isActive(p, "serve") {
		srv := &server.Server{Config: conf, Watch: opts.ServeCmd.Watch,
			SessionTTL: opts.ServeCmd.SessionTTL, MaxSessions: opts.ServeCmd.MaxSessions}
		log.Printf("[INFO] starting web inspector %s on %s", revision, conf.Listen)
		return srv.Run(ctx)
	}

	sess := &inspector.Session{Dir: conf.DataDir, DefaultName: conf.DefaultDB}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("[WARN] can't close database: %v", err)
		}
	}()
	printer := &render.Printer{Out: st.out, Monochrome: opts.NoColor}

	switch {
	case isActive(p, "exec"):
		return execCmd(ctx, opts, sess, printer)
	case isActive(p, "schema"):
		schema, err := sess.ListSchema(ctx)
		if err != nil {
			return fmt.Errorf("can't list schema: %w", err)
		}
		printer.Schema(schema)
	case isActive(p, "table"):
		name := opts.TableCmd.PositionalArgs.Name
		res, err := sess.TableRows(ctx, name)
		if err != nil {
			return fmt.Errorf("can't read table %q: %w", name, err)
		}
		printer.Table(name, res)
	case isActive(p, "examples"):
		if opts.ExamplesCmd.PositionalArgs.Level == "" {
			printer.Examples(conf.Examples)
			return nil
		}
		lvl, err := conf.Level(opts.ExamplesCmd.PositionalArgs.Level)
		if err != nil {
			return fmt.Errorf("%w, known levels: %s", err, strings.Join(conf.LevelNames(), ", "))
		}
		printer.Examples([]config.Level{lvl})
	default: // shell is the default command
		if st.interactive {
			printer.Info(fmt.Sprintf("sqltes %s, type .help for commands", revision))
		}
		sh := shell.Shell{Session: sess, Printer: printer, Config: conf, In: st.in, Prompt: st.interactive}
		if err := sh.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shell failed: %w", err)
		}
	}
	return nil
}

// execCmd runs the script file first, then statements from command line. Failed statements
// don't stop execution, all failures are reported together.
func execCmd(ctx context.Context, opts options, sess *inspector.Session, printer *render.Printer) error {
	stmts := []string{}
	if opts.ExecCmd.File != "" {
		if !fileutils.IsFile(opts.ExecCmd.File) {
			return fmt.Errorf("script file %s not found", opts.ExecCmd.File)
		}
		data, err := os.ReadFile(opts.ExecCmd.File) // nolint
		if err != nil {
			return fmt.Errorf("can't read script %s: %w", opts.ExecCmd.File, err)
		}
		stmts = append(stmts, string(data))
	}
	stmts = append(stmts, opts.ExecCmd.PositionalArgs.Statements...)
	if len(stmts) == 0 {
		return errors.New("no statements to execute")
	}

	errs := new(multierror.Error)
	for i, stmt := range stmts {
		res, err := sess.Execute(ctx, stmt)
		if err != nil {
			printer.Error(err)
			errs = multierror.Append(errs, fmt.Errorf("statement #%d: %w", i+1, err))
			continue
		}
		printer.Result(res)
	}

	if opts.ExecCmd.History {
		printer.History(sess.History())
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("can't execute: %w", err)
	}
	return nil
}

func isActive(p *flags.Parser, name string) bool {
	return p.Active != nil && p.Command.Find(name) == p.Active
}

// formatErrorString turns multierror output into an indexed list, other errors returned as is
func formatErrorString(input string) string {
	headerRe := regexp.MustCompile(`(.*\d+ errors? occurred:)`)
	headerMatch := headerRe.FindStringSubmatch(input)
	if len(headerMatch) == 0 {
		return input
	}

	errorsRe := regexp.MustCompile(`\t\* (.+)`)
	errorsMatches := errorsRe.FindAllStringSubmatch(input, -1)

	formattedString := fmt.Sprintf("%s\n", strings.TrimSpace(headerMatch[1]))
	for i, match := range errorsMatches {
		formattedString += fmt.Sprintf("   [%d] %s\n", i, strings.TrimSpace(match[1]))
	}
	return formattedString
}

// setupLog discards everything but errors unless dbg is set, logs go to stderr to keep results clean
func setupLog(dbg, noColor bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(os.Stderr), lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Out(os.Stderr), lgr.Err(os.Stderr), lgr.Debug, lgr.CallerFunc, lgr.Msec,
			lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
