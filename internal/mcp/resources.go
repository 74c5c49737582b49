package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/store"
)

const recentRunsLimit = 20

// runSummary is a run without its per-point assignments.
type runSummary struct {
	ID            string             `json:"id"`
	MythID        string             `json:"myth_id"`
	Mode          canon.Mode         `json:"mode"`
	Status        string             `json:"status"`
	Error         string             `json:"error,omitempty"`
	Clusters      int                `json:"clusters"`
	PlotPoints    int                `json:"plot_points"`
	Coverage      float64            `json:"coverage"`
	AgreementGain *float64           `json:"agreement_gain,omitempty"`
	Prevalence    map[string]float64 `json:"prevalence,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

func summarize(r *canon.Run) runSummary {
	return runSummary{
		ID:            r.ID,
		MythID:        r.MythID,
		Mode:          r.Mode,
		Status:        r.Status,
		Error:         r.Error,
		Clusters:      len(r.CanonicalIDs()),
		PlotPoints:    len(r.Assignments),
		Coverage:      r.Metrics.Coverage,
		AgreementGain: r.Metrics.AgreementGain,
		Prevalence:    r.Prevalence,
		CreatedAt:     r.CreatedAt,
	}
}

func registerRecentResource(s *server.MCPServer, st *store.RunStore) {
	resource := mcp.NewResource(
		"canon://runs/recent",
		"Recent Runs",
		mcp.WithResourceDescription("The 20 most recent canonicalization runs across all myths."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runs, err := st.Recent(ctx, recentRunsLimit)
		if err != nil {
			return nil, fmt.Errorf("querying recent runs: %w", err)
		}
		summaries := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, summarize(r))
		}

		payload := map[string]interface{}{
			"runs":  summaries,
			"count": len(summaries),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerStatsResource(s *server.MCPServer, st *store.RunStore) {
	resource := mcp.NewResource(
		"canon://stats",
		"Run History Stats",
		mcp.WithResourceDescription("Run counts overall, by mode, and failures."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying run stats: %w", err)
		}

		modes := make([]string, 0, len(stats.ByMode))
		for m := range stats.ByMode {
			modes = append(modes, m)
		}
		sort.Strings(modes)

		payload := map[string]interface{}{
			"runs":           stats.Runs,
			"failed":         stats.Failed,
			"myths":          stats.Myths,
			"by_mode":        stats.ByMode,
			"modes":          modes,
			"schema_version": stats.SchemaVersion,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
