package cluster

import (
	"math"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
	"github.com/hurttlocker/canon/internal/metrics"
)

const (
	defaultHierarchicalSteps  = 200
	defaultHierarchicalTarget = 3
)

// HierarchicalRunner agglomerates singleton clusters by best-pair linkage
// until its stopping criterion holds, optionally splitting high-entropy
// clusters afterwards.
type HierarchicalRunner struct{}

// Mode implements Runner.
func (HierarchicalRunner) Mode() canon.Mode { return canon.ModeHierarchical }

// Run implements Runner.
func (HierarchicalRunner) Run(in Input, params canon.Params) (*Result, error) {
	if in.Assignment == nil {
		return nil, canon.MissingAssignmentError("Hierarchical")
	}
	a := in.Assignment
	g := in.Agreement
	if g == nil {
		g = matrix.BuildAgreementMatrix(a, matrix.AgreementOptions{Normalize: true})
		in.Agreement = g
	}
	n := len(in.PlotPoints)

	linkage := params.LinkageMetric
	if linkage == "" {
		linkage = canon.LinkageAgreement
	}

	target, hasTarget := params.Target()
	criterion := canon.StoppingCriterion{Type: canon.StopCount, Value: float64(minInt(defaultHierarchicalTarget, n))}
	if params.StoppingCriterion != nil {
		criterion = *params.StoppingCriterion
	} else if hasTarget {
		criterion.Value = float64(target)
	}

	maxSteps := params.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultHierarchicalSteps
	}
	if hasTarget && n-target > maxSteps {
		maxSteps = n - target
	}

	clusters := make([]group, n)
	for i, p := range in.PlotPoints {
		clusters[i] = group{id: p.ID, members: []int{i}}
	}

	scores := make([]float64, 0)
	steps := 0
	for len(clusters) > 1 && steps < maxSteps {
		targetMet := !hasTarget || len(clusters) <= target
		if targetMet && criterionMet(criterion, clusters, a, scores) {
			break
		}

		bi, bj, score := bestMerge(clusters, a, g, linkage)
		merged := group{
			id:      clusters[bi].id + "|" + clusters[bj].id,
			members: append(append([]int(nil), clusters[bi].members...), clusters[bj].members...),
		}
		clusters[bi] = merged
		clusters = append(clusters[:bj], clusters[bj+1:]...)
		scores = append(scores, score)
		steps++
	}

	splits := 0
	if params.AutoSplit != nil {
		namer := newSplitNamer(groupIDs(clusters))
		limit := -1
		if hasTarget {
			limit = target
		}
		clusters, splits = autoSplit(clusters, a, params.AutoSplit.EntropyThreshold, limit, namer)
	}

	labels := make([]string, n)
	for _, c := range clusters {
		for _, i := range c.members {
			labels[i] = c.id
		}
	}

	diagnostics := map[string]any{
		"steps":     steps,
		"linkage":   linkage,
		"criterion": criterion.Type,
		"clusters":  len(clusters),
		"splits":    splits,
	}
	if len(scores) > 0 {
		diagnostics["last_merge_score"] = scores[len(scores)-1]
	}
	return finish(in, labels, nil, diagnostics), nil
}

// bestMerge scans every cluster pair and returns the global best: highest
// average agreement, or lowest combined entropy for the entropy linkage.
func bestMerge(clusters []group, a *matrix.Assignment, g *matrix.Agreement, linkage string) (int, int, float64) {
	bi, bj := 0, 1
	best := math.Inf(-1)
	if linkage == canon.LinkageEntropy {
		best = math.Inf(1)
	}
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			var score float64
			if linkage == canon.LinkageEntropy {
				members := append(append([]int(nil), clusters[i].members...), clusters[j].members...)
				score = metrics.NormalizedEntropyOf(columnHistogram(a.Values, members, a.Cols()), a.Cols())
				if score < best {
					bi, bj, best = i, j, score
				}
				continue
			}
			score = averageLinkage(g, clusters[i].members, clusters[j].members)
			if score > best {
				bi, bj, best = i, j, score
			}
		}
	}
	return bi, bj, best
}

func criterionMet(c canon.StoppingCriterion, clusters []group, a *matrix.Assignment, scores []float64) bool {
	switch c.Type {
	case canon.StopPurity:
		for _, cl := range clusters {
			hist := columnHistogram(a.Values, cl.members, a.Cols())
			if dominantShare(hist) < c.Value && sum(hist) > 0 {
				return false
			}
		}
		return true
	case canon.StopDelta:
		if len(scores) < 2 {
			return false
		}
		return math.Abs(scores[len(scores)-1]-scores[len(scores)-2]) <= c.Value
	default:
		return float64(len(clusters)) <= c.Value
	}
}

// autoSplit halves clusters whose entropy exceeds threshold. Members that
// carry the cluster's dominant category stay; the rest move to a new id.
// When one side would be empty the members are split by position parity.
// limit caps the cluster count (-1 for none).
func autoSplit(clusters []group, a *matrix.Assignment, threshold float64, limit int, namer *splitNamer) ([]group, int) {
	out := make([]group, 0, len(clusters))
	splits := 0
	total := len(clusters)
	for _, c := range clusters {
		hist := columnHistogram(a.Values, c.members, a.Cols())
		if len(c.members) < 2 || (limit >= 0 && total >= limit) ||
			metrics.NormalizedEntropyOf(hist, a.Cols()) <= threshold {
			out = append(out, c)
			continue
		}

		dominant, _ := argmax(hist)
		first, second := make([]int, 0), make([]int, 0)
		for _, i := range c.members {
			if a.Values[i][dominant] > 0 {
				first = append(first, i)
			} else {
				second = append(second, i)
			}
		}
		if len(first) == 0 || len(second) == 0 {
			first, second = make([]int, 0), make([]int, 0)
			for k, i := range c.members {
				if k%2 == 0 {
					first = append(first, i)
				} else {
					second = append(second, i)
				}
			}
		}

		out = append(out,
			group{id: c.id, members: first},
			group{id: namer.name(c.id), members: second},
		)
		splits++
		total++
	}
	return out, splits
}

func groupIDs(groups []group) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.id
	}
	return ids
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
