// Package mcp provides a Model Context Protocol server for canon.
//
// It exposes canonicalization (run, history lookup, auto-K estimation) as
// MCP tools, and recent runs and history statistics as MCP resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/canon/internal/autok"
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/ingest"
	"github.com/hurttlocker/canon/internal/matrix"
	"github.com/hurttlocker/canon/internal/orchestrator"
	"github.com/hurttlocker/canon/internal/store"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	// Store enables run lookup by id and the history resources.
	Store       *store.RunStore
	Loader      *ingest.Loader
	DefaultMode canon.Mode
	Matrix      matrix.AssignmentOptions
	AutoK       autok.Options
	Version     string
}

// dbMu serializes tool calls that touch run history. mcp-go dispatches
// handlers concurrently and SQLite allows one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all canon tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Loader == nil {
		cfg.Loader = ingest.NewLoader()
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = canon.ModeGraph
	}

	s := server.NewMCPServer(
		"Canon",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerRunTool(s, cfg)
	registerRunsTool(s, cfg.Orchestrator)
	registerAutoKTool(s, cfg)

	if cfg.Store != nil {
		registerRunGetTool(s, cfg.Store)
		registerRecentResource(s, cfg.Store)
		registerStatsResource(s, cfg.Store)
	}
	return s
}

// --- Tools ---

func registerRunTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("canon_run",
		mcp.WithDescription("Run plot-point canonicalization over a dataset and record the run. Returns the run record with canonical assignments, prevalence, metrics, and diagnostics. Failed runs are recorded too."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dataset_path",
			mcp.Description("Path to a dataset file (.json, .yaml, .yml, .csv, .tsv). Either dataset_path or dataset is required."),
		),
		mcp.WithString("dataset",
			mcp.Description("Inline JSON dataset: {myth_id, variants, categories, plot_points}."),
		),
		mcp.WithString("mode",
			mcp.Description("Clustering mode (default from config)"),
			mcp.Enum(modeNames()...),
		),
		mcp.WithNumber("target",
			mcp.Description("Target canonical category count"),
		),
		mcp.WithBoolean("auto_k",
			mcp.Description("Estimate the target count automatically (overrides target)"),
		),
		mcp.WithString("params",
			mcp.Description("Additional runner parameters as a JSON object (e.g. {\"linkage_metric\":\"entropy\"})"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		ds, err := loadDataset(ctx, cfg.Loader, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := ingest.Validate(ds); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		mode := cfg.DefaultMode
		if m, err := req.RequireString("mode"); err == nil && m != "" {
			mode, err = canon.ParseMode(m)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid mode: %v", err)), nil
			}
		}

		var params canon.Params
		if raw, err := req.RequireString("params"); err == nil && strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid params: %v", err)), nil
			}
		}
		if target, err := req.RequireFloat("target"); err == nil {
			params = params.WithTarget(int(target))
		}
		useAutoK := false
		if b, err := req.RequireBool("auto_k"); err == nil {
			useAutoK = b
		}

		runCfg := orchestrator.Config{
			MythID:     ds.MythID,
			Mode:       mode,
			PlotPoints: ds.PlotPoints,
			Categories: ds.Categories,
			Params:     params,
			Matrix:     cfg.Matrix,
			UseAutoK:   useAutoK,
			AutoK:      cfg.AutoK,
		}
		run, err := cfg.Orchestrator.Run(ctx, runCfg)
		if err != nil {
			if _, recErr := cfg.Orchestrator.RecordFailure(ctx, runCfg, err); recErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("canonicalization failed: %v (recording failure: %v)", err, recErr)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("canonicalization failed: %v", err)), nil
		}

		data, _ := json.MarshalIndent(run, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRunsTool(s *server.MCPServer, o *orchestrator.Orchestrator) {
	tool := mcp.NewTool("canon_runs",
		mcp.WithDescription("List recorded canonicalization runs for a myth, most recent first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("myth_id",
			mcp.Required(),
			mcp.Description("Myth whose runs to list"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		mythID, err := req.RequireString("myth_id")
		if err != nil || strings.TrimSpace(mythID) == "" {
			return mcp.NewToolResultError("myth_id is required"), nil
		}

		limit := defaultRunsLimit
		if l, err := req.RequireFloat("limit"); err == nil && l > 0 {
			limit = int(l)
			if limit > maxRunsLimit {
				limit = maxRunsLimit
			}
		}

		runs, err := o.ListRuns(ctx, mythID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list runs error: %v", err)), nil
		}

		summaries := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, summarize(r))
		}
		data, _ := json.MarshalIndent(summaries, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRunGetTool(s *server.MCPServer, st *store.RunStore) {
	tool := mcp.NewTool("canon_run_get",
		mcp.WithDescription("Fetch one recorded canonicalization run by id, including all assignments."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		run, err := st.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get run error: %v", err)), nil
		}
		if run == nil {
			return mcp.NewToolResultError(fmt.Sprintf("run %s not found", id)), nil
		}
		data, _ := json.MarshalIndent(run, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAutoKTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("canon_autok",
		mcp.WithDescription("Estimate a good canonical category count for a dataset using elbow detection (and optionally the gap statistic). Does not record a run."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("dataset_path",
			mcp.Description("Path to a dataset file. Either dataset_path or dataset is required."),
		),
		mcp.WithString("dataset",
			mcp.Description("Inline JSON dataset"),
		),
		mcp.WithNumber("min_k", mcp.Description("Smallest k considered (default: 2)")),
		mcp.WithNumber("max_k", mcp.Description("Largest k considered (default: min(10, n-1))")),
		mcp.WithBoolean("gap", mcp.Description("Also compute the gap statistic")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ds, err := loadDataset(ctx, cfg.Loader, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(ds.PlotPoints) == 0 {
			return mcp.NewToolResultError(ingest.ErrNoPlotPoints.Error()), nil
		}

		opts := cfg.AutoK
		if v, err := req.RequireFloat("min_k"); err == nil {
			opts.MinK = int(v)
		}
		if v, err := req.RequireFloat("max_k"); err == nil {
			opts.MaxK = int(v)
		}
		if b, err := req.RequireBool("gap"); err == nil {
			opts.Gap = b
		}

		prepared := matrix.NewProvider(ds.PlotPoints, cfg.Matrix).Prepare(true)
		opts.Agreement = prepared.Agreement
		result := autok.Detect(prepared.Assignment, opts)

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// loadDataset reads the dataset named by dataset_path or given inline.
func loadDataset(ctx context.Context, loader *ingest.Loader, req mcp.CallToolRequest) (*ingest.Dataset, error) {
	if inline, err := req.RequireString("dataset"); err == nil && strings.TrimSpace(inline) != "" {
		ds, err := ingest.ParseJSON([]byte(inline))
		if err != nil {
			return nil, fmt.Errorf("invalid dataset: %v", err)
		}
		if err := ingest.Normalize(ds); err != nil {
			return nil, fmt.Errorf("invalid dataset: %v", err)
		}
		return ds, nil
	}
	path, err := req.RequireString("dataset_path")
	if err != nil || strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset_path or dataset is required")
	}
	return loader.Load(ctx, path)
}

func modeNames() []string {
	modes := canon.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return names
}
