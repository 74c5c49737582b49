// canon reconciles collaborators' personal plot-point categories into a
// shared canonical taxonomy. It loads a dataset, runs one of the clustering
// modes, and records every run in a local SQLite history.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/hurttlocker/canon/internal/config"
	"github.com/hurttlocker/canon/internal/orchestrator"
	"github.com/hurttlocker/canon/internal/store"
)

const version = "0.1.0"

// globalFlags precede the command: canon [global flags] <command> [args].
type globalFlags struct {
	dbPath     string
	configPath string
	logLevel   string
	verbose    bool
}

// app is one CLI invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	cfg    config.ResolvedConfig
	logger *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := pflag.NewFlagSet("canon", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(stderr)
	fs.StringVar(&g.dbPath, "db", "", "run history database path (default ~/.canon/canon.db)")
	fs.StringVar(&g.configPath, "config", "", "config file path (default ~/.canon/config.yaml)")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "shorthand for --log-level debug")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stdout)
		return 0
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "version", "--version":
		fmt.Fprintf(stdout, "canon %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	}

	if g.verbose && g.logLevel == "" {
		g.logLevel = "debug"
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  g.configPath,
		CLIDBPath:   g.dbPath,
		CLILogLevel: g.logLevel,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	a := &app{
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})),
	}

	var cmdErr error
	switch cmd {
	case "run":
		cmdErr = a.runCanonicalize(cmdArgs)
	case "runs":
		cmdErr = a.runList(cmdArgs)
	case "show":
		cmdErr = a.runShow(cmdArgs)
	case "autok":
		cmdErr = a.runAutoK(cmdArgs)
	case "compare":
		cmdErr = a.runCompare(cmdArgs)
	case "config":
		cmdErr = a.runConfig(cmdArgs)
	case "mcp":
		cmdErr = a.runMCP(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printUsage(stderr)
		return 1
	}

	if cmdErr != nil {
		if errors.Is(cmdErr, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", cmdErr)
		return 1
	}
	return 0
}

// openHistory opens the configured run store and an orchestrator over it.
func (a *app) openHistory() (*store.RunStore, *orchestrator.Orchestrator, error) {
	st, err := store.NewRunStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return st, orchestrator.New(st, orchestrator.WithLogger(a.logger)), nil
}

// newFlagSet returns a subcommand flag set that reports errors instead of
// exiting.
func (a *app) newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: canon %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `canon %s - plot-point canonicalization

Usage:
  canon [global flags] <command> [arguments]

Commands:
  run <dataset>       Canonicalize a dataset and record the run
  runs <myth-id>      List recorded runs, most recent first
  show <run-id>       Show one recorded run
  autok <dataset>     Estimate the canonical category count
  compare <dataset>   Run every mode over one dataset and compare metrics
  config              Show resolved configuration and where each value came from
  mcp                 Serve the MCP tool server on stdio
  version             Print version

Global Flags:
  --db <path>         Run history database (env CANON_DB)
  --config <path>     Config file (env CANON_CONFIG)
  --log-level <lvl>   debug, info, warn, error (env CANON_LOG_LEVEL)
  -v, --verbose       Debug logging

Datasets are .json, .yaml, .yml, .csv or .tsv files.
`, version)
}
