// Package orchestrator ties a canonicalization request together: it picks
// the runner for the requested mode, prepares matrices, resolves auto-K,
// validates the target count, and records the run.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/canon/internal/autok"
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/cluster"
	"github.com/hurttlocker/canon/internal/codec"
	"github.com/hurttlocker/canon/internal/matrix"
)

// Config is one canonicalization request.
type Config struct {
	MythID     string
	Mode       canon.Mode
	PlotPoints []canon.PlotPoint
	Categories []canon.CollaboratorCategory
	Params     canon.Params
	Matrix     matrix.AssignmentOptions
	UseAutoK   bool
	AutoK      autok.Options
}

// AutoKResolver estimates a target count. autok.Detect is the default.
type AutoKResolver func(a *matrix.Assignment, opts autok.Options) autok.Result

// Orchestrator runs canonicalizations and records them.
type Orchestrator struct {
	runners cluster.Registry
	history HistoryStore
	autoK   AutoKResolver
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry replaces the runner registry.
func WithRegistry(r cluster.Registry) Option {
	return func(o *Orchestrator) { o.runners = r }
}

// WithAutoKResolver replaces the auto-K resolver.
func WithAutoKResolver(r AutoKResolver) Option {
	return func(o *Orchestrator) { o.autoK = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator sets the run id source.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New returns an Orchestrator recording into history.
func New(history HistoryStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runners: cluster.DefaultRegistry(),
		history: history,
		autoK:   autok.Detect,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes cfg and returns the recorded run. Errors are returned
// unchanged; callers decide whether to RecordFailure.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*canon.Run, error) {
	runner, err := o.runners.Lookup(cfg.Mode)
	if err != nil {
		return nil, err
	}

	points := canon.ClonePlotPoints(cfg.PlotPoints)
	categories := append([]canon.CollaboratorCategory(nil), cfg.Categories...)

	o.logger.Info("canonicalization started",
		"mode", cfg.Mode, "myth", cfg.MythID, "plot_points", len(points), "auto_k", cfg.UseAutoK)

	withAgreement := cfg.Mode == canon.ModeGraph || cfg.Mode == canon.ModeHierarchical || cfg.UseAutoK
	prepared := matrix.NewProvider(points, cfg.Matrix).Prepare(withAgreement)

	params := cfg.Params
	var autoKResult *autok.Result
	if cfg.UseAutoK {
		opts := cfg.AutoK
		opts.Agreement = prepared.Agreement
		res := o.autoK(prepared.Assignment, opts)
		autoKResult = &res
		params = params.WithTarget(res.SelectedK)
		o.logger.Debug("auto-k resolved", "selected_k", res.SelectedK, "reason", res.Reason)
	}

	if target, ok := params.Target(); ok {
		if err := canon.ValidateTarget(target, len(points)); err != nil {
			return nil, err
		}
	}

	result, err := runner.Run(cluster.Input{
		MythID:     cfg.MythID,
		PlotPoints: points,
		Categories: categories,
		Assignment: prepared.Assignment,
		Agreement:  prepared.Agreement,
	}, params)
	if err != nil {
		return nil, fmt.Errorf("running %s canonicalization: %w", cfg.Mode, err)
	}

	diagnostics := make(map[string]any, len(result.Diagnostics)+1)
	for k, v := range result.Diagnostics {
		diagnostics[k] = v
	}
	if autoKResult != nil {
		diagnostics["autoK"] = autoKResult
	}

	digest, err := codec.Digest(points)
	if err != nil {
		return nil, fmt.Errorf("digesting plot points: %w", err)
	}

	run := &canon.Run{
		ID:          o.newID(),
		MythID:      cfg.MythID,
		Mode:        cfg.Mode,
		Params:      params,
		Assignments: result.Assignments,
		Prevalence:  result.Prevalence,
		Metrics:     result.Metrics,
		Diagnostics: diagnostics,
		InputDigest: digest,
		Status:      canon.StatusCompleted,
		CreatedAt:   o.now(),
	}
	if err := o.history.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	o.logger.Info("canonicalization completed",
		"run", run.ID, "mode", run.Mode, "clusters", len(run.CanonicalIDs()), "coverage", run.Metrics.Coverage)
	return run, nil
}

// RecordFailure saves a failed run for cfg carrying cause's message.
func (o *Orchestrator) RecordFailure(ctx context.Context, cfg Config, cause error) (*canon.Run, error) {
	run := &canon.Run{
		ID:          o.newID(),
		MythID:      cfg.MythID,
		Mode:        cfg.Mode,
		Params:      cfg.Params,
		Assignments: []canon.CanonicalAssignment{},
		Prevalence:  map[string]float64{},
		Status:      canon.StatusFailed,
		Error:       cause.Error(),
		CreatedAt:   o.now(),
	}
	o.logger.Warn("canonicalization failed", "mode", cfg.Mode, "myth", cfg.MythID, "error", cause)
	if err := o.history.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("saving failed run: %w", err)
	}
	return run, nil
}

// ListRuns returns mythID's runs, most recent first.
func (o *Orchestrator) ListRuns(ctx context.Context, mythID string, limit int) ([]*canon.Run, error) {
	return o.history.List(ctx, mythID, limit)
}
