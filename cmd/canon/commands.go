package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/canon/internal/autok"
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/codec"
	"github.com/hurttlocker/canon/internal/ingest"
	"github.com/hurttlocker/canon/internal/matrix"
	"github.com/hurttlocker/canon/internal/mcp"
	"github.com/hurttlocker/canon/internal/orchestrator"
)

// runFlags are shared by run and compare.
type runFlags struct {
	target    int
	useAutoK  bool
	gap       bool
	params    string
	normalize bool
	format    string
}

func (a *app) bindRunFlags(f *runFlags, fs *pflag.FlagSet) {
	fs.IntVar(&f.target, "target", 0, "target canonical category count (0 = runner default)")
	fs.BoolVar(&f.useAutoK, "auto-k", false, "estimate the target count automatically")
	fs.BoolVar(&f.gap, "gap", a.cfg.AutoK.Gap, "use the gap statistic when estimating the target")
	fs.StringVar(&f.params, "params", "", "extra runner parameters as a JSON object")
	fs.BoolVar(&f.normalize, "normalize", a.cfg.Matrix.NormalizeWithinPlotPoint, "normalize each collaborator's tags within a plot point")
	fs.StringVar(&f.format, "format", "text", "output format: text or json")
}

// request builds an orchestrator config for ds from the parsed flags.
func (a *app) request(ds *ingest.Dataset, mode canon.Mode, f runFlags) (orchestrator.Config, error) {
	var params canon.Params
	if strings.TrimSpace(f.params) != "" {
		if err := json.Unmarshal([]byte(f.params), &params); err != nil {
			return orchestrator.Config{}, fmt.Errorf("parsing --params: %w", err)
		}
	}
	if f.target != 0 {
		params = params.WithTarget(f.target)
	}
	matrixOpts := a.cfg.MatrixOptions()
	matrixOpts.NormalizeWithinPlotPoint = f.normalize
	autoKOpts := a.cfg.AutoKOptions()
	autoKOpts.Gap = f.gap

	return orchestrator.Config{
		MythID:     ds.MythID,
		Mode:       mode,
		PlotPoints: ds.PlotPoints,
		Categories: ds.Categories,
		Params:     params,
		Matrix:     matrixOpts,
		UseAutoK:   f.useAutoK,
		AutoK:      autoKOpts,
	}, nil
}

func (a *app) loadDataset(ctx context.Context, path string) (*ingest.Dataset, error) {
	ds, err := ingest.NewLoader().Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ingest.Validate(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (a *app) runCanonicalize(args []string) error {
	var f runFlags
	var modeFlag string
	fs := a.newFlagSet("run", "run <dataset> [--mode m] [--target n | --auto-k]")
	fs.StringVarP(&modeFlag, "mode", "m", "", "clustering mode: graph, factorization, consensus, hierarchical, directive")
	a.bindRunFlags(&f, fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: canon run <dataset> [--mode m] [--target n | --auto-k]")
	}

	mode := a.cfg.CanonMode()
	if modeFlag != "" {
		m, err := canon.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		mode = m
	}

	ctx := context.Background()
	ds, err := a.loadDataset(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	req, err := a.request(ds, mode, f)
	if err != nil {
		return err
	}

	st, orch, err := a.openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := orch.Run(ctx, req)
	if err != nil {
		if _, recErr := orch.RecordFailure(ctx, req, err); recErr != nil {
			a.logger.Error("recording failed run", "error", recErr)
		}
		return err
	}
	return a.printRun(result, f.format)
}

func (a *app) runList(args []string) error {
	var limit int
	var format, out string
	fs := a.newFlagSet("runs", "runs <myth-id> [--limit n] [--format text|json|cbor]")
	fs.IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 = all)")
	fs.StringVar(&format, "format", "text", "output format: text, json, or cbor")
	fs.StringVarP(&out, "out", "o", "", "write output to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: canon runs <myth-id> [--limit n]")
	}

	st, orch, err := a.openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := orch.ListRuns(context.Background(), fs.Arg(0), limit)
	if err != nil {
		return err
	}

	w := a.stdout
	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer file.Close()
		w = file
	}

	switch format {
	case "json":
		return writeJSON(w, runs)
	case "cbor":
		data, err := codec.Marshal(runs)
		if err != nil {
			return fmt.Errorf("encoding runs: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "text":
		printRunTable(w, runs)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json, or cbor)", format)
	}
}

func (a *app) runShow(args []string) error {
	var format string
	fs := a.newFlagSet("show", "show <run-id> [--format text|json]")
	fs.StringVar(&format, "format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: canon show <run-id>")
	}

	st, _, err := a.openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.Get(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", fs.Arg(0))
	}
	return a.printRun(run, format)
}

func (a *app) runAutoK(args []string) error {
	opts := a.cfg.AutoKOptions()
	var format string
	var normalize bool
	fs := a.newFlagSet("autok", "autok <dataset> [--min-k n] [--max-k n] [--gap]")
	fs.IntVar(&opts.MinK, "min-k", opts.MinK, "smallest k considered (default 2)")
	fs.IntVar(&opts.MaxK, "max-k", opts.MaxK, "largest k considered (default min(10, n-1))")
	fs.BoolVar(&opts.Gap, "gap", opts.Gap, "also compute the gap statistic")
	fs.IntVar(&opts.ReferenceRuns, "reference-runs", opts.ReferenceRuns, "gap statistic reference datasets (default by size)")
	fs.BoolVar(&normalize, "normalize", a.cfg.Matrix.NormalizeWithinPlotPoint, "normalize each collaborator's tags within a plot point")
	fs.StringVar(&format, "format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: canon autok <dataset>")
	}

	ds, err := ingest.NewLoader().Load(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if len(ds.PlotPoints) == 0 {
		return ingest.ErrNoPlotPoints
	}

	matrixOpts := a.cfg.MatrixOptions()
	matrixOpts.NormalizeWithinPlotPoint = normalize
	prepared := matrix.NewProvider(ds.PlotPoints, matrixOpts).Prepare(true)
	opts.Agreement = prepared.Agreement
	result := autok.Detect(prepared.Assignment, opts)

	if format == "json" {
		return writeJSON(a.stdout, result)
	}
	printAutoK(a.stdout, result)
	return nil
}

// compareRow is one mode's outcome in canon compare.
type compareRow struct {
	Mode          canon.Mode `json:"mode"`
	Clusters      int        `json:"clusters"`
	Coverage      float64    `json:"coverage"`
	MeanPurity    float64    `json:"mean_purity"`
	MeanEntropy   float64    `json:"mean_entropy"`
	AgreementGain *float64   `json:"agreement_gain,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func (a *app) runCompare(args []string) error {
	var f runFlags
	var save bool
	fs := a.newFlagSet("compare", "compare <dataset> [--target n | --auto-k] [--save]")
	a.bindRunFlags(&f, fs)
	fs.BoolVar(&save, "save", false, "record every run in history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: canon compare <dataset>")
	}

	ctx := context.Background()
	ds, err := a.loadDataset(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	var history orchestrator.HistoryStore = orchestrator.NewMemoryHistory()
	if save {
		st, _, err := a.openHistory()
		if err != nil {
			return err
		}
		defer st.Close()
		history = st
	}
	orch := orchestrator.New(history, orchestrator.WithLogger(a.logger))

	modes := canon.Modes()
	rows := make([]compareRow, len(modes))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range modes {
		req, err := a.request(ds, mode, f)
		if err != nil {
			return err
		}
		g.Go(func() error {
			row := compareRow{Mode: mode}
			run, err := orch.Run(gctx, req)
			if err != nil {
				row.Error = err.Error()
				rows[i] = row
				if save {
					if _, recErr := orch.RecordFailure(gctx, req, err); recErr != nil {
						a.logger.Error("recording failed run", "mode", mode, "error", recErr)
					}
				}
				return nil
			}
			row.Clusters = len(run.CanonicalIDs())
			row.Coverage = run.Metrics.Coverage
			row.MeanPurity = mean(run.Metrics.PurityByCanonical)
			row.MeanEntropy = mean(run.Metrics.EntropyByCanonical)
			row.AgreementGain = run.Metrics.AgreementGain
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if f.format == "json" {
		return writeJSON(a.stdout, rows)
	}
	printCompare(a.stdout, rows)
	return nil
}

func (a *app) runConfig(args []string) error {
	var format string
	fs := a.newFlagSet("config", "config [--format text|json]")
	fs.StringVar(&format, "format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(a.stdout, a.cfg)
	}
	printConfig(a.stdout, a.cfg)
	return nil
}

func (a *app) runMCP(args []string) error {
	fs := a.newFlagSet("mcp", "mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, orch, err := a.openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Orchestrator: orch,
		Store:        st,
		DefaultMode:  a.cfg.CanonMode(),
		Matrix:       a.cfg.MatrixOptions(),
		AutoK:        a.cfg.AutoKOptions(),
		Version:      version,
	})
	a.logger.Info("serving MCP on stdio", "db", st.Path())
	return server.ServeStdio(srv)
}

func mean(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range m {
		total += v
	}
	return total / float64(len(m))
}
