// Package cluster implements the five canonicalization strategies. Each
// runner turns a plot-point snapshot plus its matrices into a canonical
// partition and scores it with the metric suite.
package cluster

import (
	"fmt"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
	"github.com/hurttlocker/canon/internal/metrics"
)

// Input is everything a runner may read. Runners never mutate it.
type Input struct {
	MythID     string
	PlotPoints []canon.PlotPoint
	Categories []canon.CollaboratorCategory
	Assignment *matrix.Assignment
	Agreement  *matrix.Agreement
}

// Result is a runner's partition with metrics and diagnostics.
type Result struct {
	Assignments []canon.CanonicalAssignment
	Prevalence  map[string]float64
	Metrics     canon.MetricSummary
	Diagnostics map[string]any
}

// Runner is one clustering strategy.
type Runner interface {
	Mode() canon.Mode
	Run(in Input, params canon.Params) (*Result, error)
}

// Registry maps modes to runners.
type Registry map[canon.Mode]Runner

// DefaultRegistry returns all five runners.
func DefaultRegistry() Registry {
	reg := Registry{}
	for _, r := range []Runner{GraphRunner{}, FactorizationRunner{}, ConsensusRunner{}, HierarchicalRunner{}, DirectiveRunner{}} {
		reg[r.Mode()] = r
	}
	return reg
}

// Lookup returns the runner for mode.
func (r Registry) Lookup(mode canon.Mode) (Runner, error) {
	runner, ok := r[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", canon.ErrUnknownMode, mode)
	}
	return runner, nil
}

// finish builds a Result from per-point labels (parallel to in.PlotPoints).
// scores may be nil.
func finish(in Input, labels []string, scores []float64, diagnostics map[string]any) *Result {
	assignments := make([]canon.CanonicalAssignment, 0, len(labels))
	for i, label := range labels {
		a := canon.CanonicalAssignment{PlotPointID: in.PlotPoints[i].ID, CanonicalID: label}
		if scores != nil {
			a.Score = canon.Float64(scores[i])
		}
		assignments = append(assignments, a)
	}
	return &Result{
		Assignments: assignments,
		Prevalence:  metrics.Prevalence(assignments, in.PlotPoints),
		Metrics: metrics.Compute(assignments, metrics.Input{
			PlotPoints: in.PlotPoints,
			Categories: in.Categories,
			Agreement:  in.Agreement,
		}),
		Diagnostics: diagnostics,
	}
}
