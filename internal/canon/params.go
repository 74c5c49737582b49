package canon

import (
	"fmt"
	"strings"
)

// Numeric guards shared by the algorithms.
const (
	// Epsilon keeps multiplicative-update denominators away from zero.
	Epsilon = 1e-9
	// ImprovementEpsilon is the smallest objective gain a local-search move
	// must achieve to be applied.
	ImprovementEpsilon = 1e-6
)

// Mode selects a clustering algorithm.
type Mode string

const (
	ModeGraph         Mode = "graph"
	ModeFactorization Mode = "factorization"
	ModeConsensus     Mode = "consensus"
	ModeHierarchical  Mode = "hierarchical"
	ModeDirective     Mode = "directive"
)

// Modes lists every supported mode in a stable order.
func Modes() []Mode {
	return []Mode{ModeGraph, ModeFactorization, ModeConsensus, ModeHierarchical, ModeDirective}
}

// ParseMode converts a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Linkage metrics for the hierarchical runner.
const (
	LinkageAgreement = "agreement"
	LinkageEntropy   = "entropy"
)

// Stopping criterion types for the hierarchical runner.
const (
	StopCount  = "count"
	StopPurity = "purity"
	StopDelta  = "delta"
)

// Optimization goals for the directive runner.
const (
	GoalPurity    = "purity"
	GoalVariance  = "variance"
	GoalConsensus = "consensus"
)

// StoppingCriterion ends hierarchical agglomeration.
type StoppingCriterion struct {
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
}

// AutoSplit configures post-merge splitting of high-entropy clusters.
type AutoSplit struct {
	EntropyThreshold float64 `json:"entropy_threshold" yaml:"entropy_threshold"`
}

// Params is the union of every algorithm's tuning knobs. Zero values mean
// "use the algorithm default"; each runner reads only the fields it knows.
type Params struct {
	TargetCanonicalCount *int `json:"target_canonical_count,omitempty" yaml:"target_canonical_count,omitempty"`
	MaxIterations        int  `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	MinClusterSize       int  `json:"min_cluster_size,omitempty" yaml:"min_cluster_size,omitempty"`

	// factorization
	Rank      int     `json:"rank,omitempty" yaml:"rank,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	L1Reg     float64 `json:"l1_reg,omitempty" yaml:"l1_reg,omitempty"`

	// consensus
	SplitPenalty   *float64 `json:"split_penalty,omitempty" yaml:"split_penalty,omitempty"`
	MergePenalty   *float64 `json:"merge_penalty,omitempty" yaml:"merge_penalty,omitempty"`
	BalancePenalty *float64 `json:"balance_penalty,omitempty" yaml:"balance_penalty,omitempty"`

	// hierarchical
	LinkageMetric     string             `json:"linkage_metric,omitempty" yaml:"linkage_metric,omitempty"`
	StoppingCriterion *StoppingCriterion `json:"stopping_criterion,omitempty" yaml:"stopping_criterion,omitempty"`
	MaxSteps          int                `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	AutoSplit         *AutoSplit         `json:"auto_split,omitempty" yaml:"auto_split,omitempty"`

	// directive
	OptimizationGoal string `json:"optimization_goal,omitempty" yaml:"optimization_goal,omitempty"`
}

// Target returns the requested canonical count, if any.
func (p Params) Target() (int, bool) {
	if p.TargetCanonicalCount == nil {
		return 0, false
	}
	return *p.TargetCanonicalCount, true
}

// WithTarget returns a copy of p with the target count replaced.
func (p Params) WithTarget(k int) Params {
	p.TargetCanonicalCount = Int(k)
	return p
}

func penaltyOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Penalties returns the consensus objective weights with defaults applied.
func (p Params) Penalties() (split, merge, balance float64) {
	return penaltyOr(p.SplitPenalty, 1), penaltyOr(p.MergePenalty, 1), penaltyOr(p.BalancePenalty, 0.5)
}
