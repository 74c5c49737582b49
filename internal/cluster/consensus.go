package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/metrics"
)

const (
	defaultConsensusTarget     = 3
	defaultConsensusIterations = 25
)

// ConsensusRunner searches for the partition that best reconciles the
// collaborators' own taxonomies: it penalizes scattering one collaborator's
// tags, mixing many collaborators in one cluster, and uneven cluster sizes.
type ConsensusRunner struct{}

// Mode implements Runner.
func (ConsensusRunner) Mode() canon.Mode { return canon.ModeConsensus }

// Run implements Runner. It needs only the plot points' own tags.
func (ConsensusRunner) Run(in Input, params canon.Params) (*Result, error) {
	n := len(in.PlotPoints)
	if n == 0 {
		return finish(in, nil, nil, map[string]any{"iterations": 0}), nil
	}

	target := defaultConsensusTarget
	if t, ok := params.Target(); ok {
		target = t
	}
	target = clampInt(target, 1, n)

	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultConsensusIterations
	}

	obj := newConsensusObjective(in.PlotPoints, target, params)

	labels := make([]string, n)
	for i, p := range in.PlotPoints {
		if len(p.Assignments) > 0 && p.Assignments[0].CategoryID != "" {
			labels[i] = p.Assignments[0].CategoryID
		} else {
			labels[i] = fmt.Sprintf("unassigned-%d", i%target)
		}
	}
	part := newPartition(labels)
	namer := newSplitNamer(part.labels)
	enforceExactCount(part, target, namer)

	iterations := 0
	current := obj.score(part.labels)
	for iterations < maxIterations {
		iterations++
		changed := false
		for i := 0; i < n; i++ {
			original := part.labels[i]
			best, bestScore := original, current
			for _, candidate := range consensusCandidates(part, in.PlotPoints[i]) {
				if candidate == original {
					continue
				}
				part.labels[i] = candidate
				if s := obj.score(part.labels); s < bestScore-canon.ImprovementEpsilon {
					best, bestScore = candidate, s
				}
			}
			part.labels[i] = best
			if best != original {
				changed = true
				current = bestScore
			}
		}
		enforceExactCount(part, target, namer)
		current = obj.score(part.labels)
		if !changed {
			break
		}
	}

	return finish(in, part.labels, nil, map[string]any{
		"iterations": iterations,
		"objective":  current,
		"clusters":   part.count(),
		"target":     target,
	}), nil
}

// consensusCandidates lists every cluster id in play plus the point's own
// collaborator category ids, in a stable order.
func consensusCandidates(part *partition, p canon.PlotPoint) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, g := range part.groups() {
		seen[g.id] = struct{}{}
		out = append(out, g.id)
	}
	for _, a := range p.Assignments {
		if a.CategoryID == "" {
			continue
		}
		if _, ok := seen[a.CategoryID]; ok {
			continue
		}
		seen[a.CategoryID] = struct{}{}
		out = append(out, a.CategoryID)
	}
	return out
}

// enforceExactCount merges the two smallest clusters or splits the largest
// until exactly target clusters exist, then folds any leftovers into the
// largest surviving cluster.
func enforceExactCount(part *partition, target int, namer *splitNamer) {
	n := len(part.labels)
	for guard := n + target + 1; guard > 0; guard-- {
		groups := part.groups()
		if len(groups) == target {
			return
		}
		if len(groups) > target {
			order := make([]int, len(groups))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(a, b int) bool {
				return len(groups[order[a]].members) < len(groups[order[b]].members)
			})
			a, b := groups[order[0]], groups[order[1]]
			merged := a.id + "|" + b.id
			part.relabel(a.id, merged)
			part.relabel(b.id, merged)
			continue
		}

		big := groups[largestGroup(groups)]
		if len(big.members) < 2 {
			break
		}
		move := n / target
		if move < 1 {
			move = 1
		}
		if move > len(big.members)-1 {
			move = len(big.members) - 1
		}
		id := namer.name(big.id)
		for _, i := range big.members[len(big.members)-move:] {
			part.labels[i] = id
		}
	}

	groups := part.groups()
	if len(groups) <= target {
		return
	}
	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(groups[order[a]].members) > len(groups[order[b]].members)
	})
	keep := groups[order[0]].id
	for _, k := range order[target:] {
		part.relabel(groups[k].id, keep)
	}
}

type consensusObjective struct {
	splitPenalty, mergePenalty, balancePenalty float64
	ideal                                      float64
	collaborators                              int
	// weights[i] is each collaborator's total tag weight on point i.
	weights []map[string]float64
}

func newConsensusObjective(points []canon.PlotPoint, target int, params canon.Params) *consensusObjective {
	split, merge, balance := params.Penalties()
	o := &consensusObjective{
		splitPenalty:   split,
		mergePenalty:   merge,
		balancePenalty: balance,
		ideal:          float64(len(points)) / float64(target),
		weights:        make([]map[string]float64, len(points)),
	}
	all := make(map[string]struct{})
	for i, p := range points {
		w := make(map[string]float64)
		for _, a := range p.Assignments {
			w[a.Collaborator] += a.EffectiveWeight()
			all[a.Collaborator] = struct{}{}
		}
		o.weights[i] = w
	}
	o.collaborators = len(all)
	return o
}

func (o *consensusObjective) score(labels []string) float64 {
	// split: one collaborator's tags scattered across clusters.
	perCollaborator := make(map[string]map[string]float64)
	// merge: one cluster drawing on many collaborators.
	perCluster := make(map[string]map[string]float64)
	sizes := make(map[string]int)

	for i, label := range labels {
		sizes[label]++
		cluster, ok := perCluster[label]
		if !ok {
			cluster = make(map[string]float64)
			perCluster[label] = cluster
		}
		for collaborator, w := range o.weights[i] {
			byCluster, ok := perCollaborator[collaborator]
			if !ok {
				byCluster = make(map[string]float64)
				perCollaborator[collaborator] = byCluster
			}
			byCluster[label] += w
			cluster[collaborator] += w
		}
	}

	split := 0.0
	for _, byCluster := range perCollaborator {
		split += 1 - metrics.Purity(byCluster)
	}
	merge := 0.0
	for _, cluster := range perCluster {
		merge += metrics.NormalizedEntropy(cluster, o.collaborators)
	}
	balance := 0.0
	if o.ideal > 0 {
		for _, size := range sizes {
			balance += math.Abs(float64(size)-o.ideal) / o.ideal
		}
	}
	return o.splitPenalty*split + o.mergePenalty*merge + o.balancePenalty*balance
}
