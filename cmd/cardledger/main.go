package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/cardledger/internal/config"
	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/logger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/output"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/registry"
	"github.com/rumor-ml/commons.systems/cardledger/internal/rules"
	"github.com/rumor-ml/commons.systems/cardledger/internal/store"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ui"
)

const version = "0.1.0"

// errUsage marks a command line problem; usage has already been printed
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalFlags struct {
	configPath string
	dbPath     string
	rulesPath  string
	jsonOut    bool
	verbose    bool
	version    bool
}

// app holds the services shared by every command
type app struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *ledger.Service
	importer *importer.Importer
	registry *registry.Registry
	engine   *reconcile.Engine
	log      zerolog.Logger

	stdout  io.Writer
	stderr  io.Writer
	printer *ui.Printer
	jsonOut bool
}

// emit writes v as JSON in -json mode and calls render otherwise
func (a *app) emit(v any, render func(p *ui.Printer)) error {
	if a.jsonOut {
		return output.Write(v, a.stdout)
	}
	render(a.printer)
	return nil
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprint(w, `cardledger - credit card ledger and bank statement reconciliation

Usage:
  cardledger [global flags] <command> [flags]

Commands:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
	fmt.Fprint(w, "\nGlobal flags:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprint(w, `
Examples:
  cardledger card add -name Nubank -limit 5000 -closing 15 -due 7
  cardledger purchase add -card 1 -amount 300 -n 3 -desc "TV"
  cardledger import -account "Conta Corrente" extrato.ofx
  cardledger automatch -month 2024-03
  cardledger -json month -month 2024-03
`)
}

// run executes one command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := flag.NewFlagSet("cardledger", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&g.configPath, "config", "", "YAML config file")
	fs.StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config)")
	fs.StringVar(&g.rulesPath, "rules", "", "Category rules file (default: embedded rules)")
	fs.BoolVar(&g.jsonOut, "json", false, "Write results as JSON")
	fs.BoolVar(&g.verbose, "verbose", false, "Show debug logs")
	fs.BoolVar(&g.version, "version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(stdout, fs)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		usage(stderr, fs)
		return 2
	}

	if g.version {
		fmt.Fprintf(stdout, "cardledger version %s\n", version)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, "Error: a command is required\n\n")
		usage(stderr, fs)
		return 2
	}

	name, cmdArgs := resolveCommand(rest)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", name)
		usage(stderr, fs)
		return 2
	}

	a, err := setup(ctx, g, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	if err := cmd.run(ctx, a, cmdArgs); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		reportError(a, err)
		return 1
	}
	return 0
}

// resolveCommand joins a group and its subcommand, e.g. "card add"
func resolveCommand(args []string) (string, []string) {
	if len(args) >= 2 {
		if _, ok := commands[args[0]+" "+args[1]]; ok {
			return args[0] + " " + args[1], args[2:]
		}
	}
	return args[0], args[1:]
}

func reportError(a *app, err error) {
	if a.jsonOut {
		body := output.ErrorBody{Error: err.Error(), Kind: "internal"}
		var vErr *domain.ValidationError
		switch {
		case errors.As(err, &vErr):
			body.Kind = "validation"
			body.Field = vErr.Field
		case errors.Is(err, domain.ErrNotFound):
			body.Kind = "not_found"
		}
		if werr := output.Write(body, a.stdout); werr == nil {
			return
		}
	}
	ui.New(a.stderr).Error(err.Error())
}

func setup(ctx context.Context, g globalFlags, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.Database.Path = g.dbPath
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if g.verbose {
		level = zerolog.DebugLevel
	}
	log, err := logger.New(cfg.Log.Format, level, stderr)
	if err != nil {
		return nil, err
	}

	holidays, err := cfg.Holidays()
	if err != nil {
		return nil, err
	}

	var categorizer *rules.Engine
	if strings.TrimSpace(g.rulesPath) != "" {
		categorizer, err = rules.LoadFromFile(g.rulesPath)
	} else {
		categorizer, err = rules.LoadEmbedded()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category rules: %w", err)
	}

	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create parser registry: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("db", cfg.Database.Path).Strs("parsers", reg.ListParsers()).Msg("database opened")

	return &app{
		cfg:    cfg,
		store:  st,
		ledger: ledger.NewService(st, holidays, log),
		importer: importer.New(st, reg, importer.Config{
			Parser:         cfg.ParserName(),
			DefaultAccount: cfg.Importer.DefaultAccount,
		}, log),
		registry: reg,
		engine:   reconcile.NewEngine(st, categorizer, log),
		log:      log,
		stdout:   stdout,
		stderr:   stderr,
		printer:  ui.New(stdout),
		jsonOut:  g.jsonOut,
	}, nil
}
