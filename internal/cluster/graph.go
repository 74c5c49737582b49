package cluster

import (
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

const defaultGraphIterations = 12

// GraphRunner clusters by label propagation over the agreement graph, then
// enforces the target count and minimum cluster size.
type GraphRunner struct{}

// Mode implements Runner.
func (GraphRunner) Mode() canon.Mode { return canon.ModeGraph }

// Run implements Runner.
func (GraphRunner) Run(in Input, params canon.Params) (*Result, error) {
	if in.Agreement == nil {
		return nil, canon.MissingAgreementError("Agreement graph")
	}
	g := in.Agreement
	n := len(in.PlotPoints)

	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultGraphIterations
	}

	labels := make([]string, n)
	for i, p := range in.PlotPoints {
		labels[i] = p.ID
	}
	part := newPartition(labels)
	namer := newSplitNamer(part.labels)

	iterations := 0
	for iter := 0; iter < maxIterations && n > 0; iter++ {
		iterations++
		changed := false
		start := iter % n
		for k := 0; k < n; k++ {
			i := (start + k) % n
			if next := strongestNeighborLabel(g, part.labels, i, ""); next != "" && next != part.labels[i] {
				part.labels[i] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	communities := part.count()

	target, hasTarget := params.Target()
	merges, splits := 0, 0
	if hasTarget && target > 0 {
		merges += mergeDownTo(g, part, target)
		splits += splitUpTo(part, target, namer)
	}

	dissolved := 0
	if params.MinClusterSize > 1 {
		dissolved = enforceMinSize(g, part, params.MinClusterSize)
		if hasTarget && target > 0 {
			merges += mergeDownTo(g, part, target)
		}
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		own, all := 0.0, 0.0
		for j := 0; j < n; j++ {
			if j == i || g.At(i, j) <= 0 {
				continue
			}
			all += g.At(i, j)
			if part.labels[j] == part.labels[i] {
				own += g.At(i, j)
			}
		}
		if all > 0 {
			scores[i] = own / all
		}
	}

	return finish(in, part.labels, scores, map[string]any{
		"iterations":         iterations,
		"communities":        communities,
		"final_communities":  part.count(),
		"merges":             merges,
		"splits":             splits,
		"dissolved_clusters": dissolved,
	}), nil
}

// strongestNeighborLabel returns the label with the highest total positive
// agreement from point i's neighbors. Ties keep the current label. Labels
// equal to exclude are skipped. Returns "" when no neighbor qualifies.
func strongestNeighborLabel(g *matrix.Agreement, labels []string, i int, exclude string) string {
	weights := make(map[string]float64)
	order := make([]string, 0)
	for j := range labels {
		if j == i {
			continue
		}
		w := g.At(i, j)
		if w <= 0 || labels[j] == exclude {
			continue
		}
		if _, ok := weights[labels[j]]; !ok {
			order = append(order, labels[j])
		}
		weights[labels[j]] += w
	}
	if len(order) == 0 {
		return ""
	}

	current := labels[i]
	best, bestWeight := "", 0.0
	if w, ok := weights[current]; ok && current != exclude {
		best, bestWeight = current, w
	}
	for _, label := range order {
		if weights[label] > bestWeight {
			best, bestWeight = label, weights[label]
		}
	}
	return best
}

// mergeDownTo folds the smallest cluster into the cluster it agrees with most
// (average inter-cluster weight) until at most target clusters remain.
func mergeDownTo(g *matrix.Agreement, part *partition, target int) int {
	merges := 0
	for part.count() > target {
		groups := part.groups()
		small := smallestGroup(groups)
		into, bestAvg := -1, 0.0
		for k := range groups {
			if k == small {
				continue
			}
			avg := averageLinkage(g, groups[small].members, groups[k].members)
			if into == -1 || avg > bestAvg {
				into, bestAvg = k, avg
			}
		}
		if into == -1 {
			break
		}
		part.relabel(groups[small].id, groups[into].id)
		merges++
	}
	return merges
}

// splitUpTo halves the largest cluster by insertion order until target
// clusters exist or nothing can be split.
func splitUpTo(part *partition, target int, namer *splitNamer) int {
	splits := 0
	for part.count() < target {
		groups := part.groups()
		big := groups[largestGroup(groups)]
		if len(big.members) < 2 {
			break
		}
		id := namer.name(big.id)
		for _, i := range big.members[len(big.members)/2:] {
			part.labels[i] = id
		}
		splits++
	}
	return splits
}

// enforceMinSize dissolves clusters below minSize into their strongest
// neighboring label; anything still undersized falls back to singletons.
func enforceMinSize(g *matrix.Agreement, part *partition, minSize int) int {
	dissolved := 0
	for _, grp := range part.groups() {
		if len(grp.members) >= minSize {
			continue
		}
		dissolved++
		for _, i := range grp.members {
			if next := strongestNeighborLabel(g, part.labels, i, grp.id); next != "" {
				part.labels[i] = next
			}
		}
	}

	groups := part.groups()
	inUse := make(map[string]struct{}, len(groups))
	for _, grp := range groups {
		if len(grp.members) >= minSize {
			inUse[grp.id] = struct{}{}
		}
	}
	for _, grp := range groups {
		if len(grp.members) >= minSize {
			continue
		}
		for _, i := range grp.members {
			id := g.PlotPointIDs[i]
			if _, taken := inUse[id]; taken {
				id += "-singleton"
			}
			part.labels[i] = id
		}
	}
	return dissolved
}

func averageLinkage(g *matrix.Agreement, a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	total := 0.0
	for _, i := range a {
		for _, j := range b {
			total += g.At(i, j)
		}
	}
	return total / float64(len(a)*len(b))
}
