package cluster

import (
	"fmt"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
	"github.com/hurttlocker/canon/internal/metrics"
)

const (
	defaultDirectiveTarget     = 5
	defaultDirectiveIterations = 50
)

// DirectiveRunner seeds medoids by farthest-point selection, assigns points
// to the nearest medoid, then applies single-point moves that improve the
// chosen goal while respecting a minimum cluster size.
type DirectiveRunner struct{}

// Mode implements Runner.
func (DirectiveRunner) Mode() canon.Mode { return canon.ModeDirective }

// Run implements Runner.
func (DirectiveRunner) Run(in Input, params canon.Params) (*Result, error) {
	if in.Assignment == nil {
		return nil, canon.MissingAssignmentError("Directive")
	}
	a := in.Assignment
	n := a.Rows()
	if n == 0 {
		return finish(in, nil, nil, map[string]any{"iterations": 0}), nil
	}

	k := minInt(defaultDirectiveTarget, n)
	if t, ok := params.Target(); ok {
		k = clampInt(t, 1, n)
	}
	goal := params.OptimizationGoal
	if goal == "" {
		goal = canon.GoalPurity
	}
	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultDirectiveIterations
	}
	minSize := params.MinClusterSize
	if minSize < 1 {
		minSize = 1
	}
	effectiveMin := minInt(minSize, n/k)
	if effectiveMin < 1 {
		effectiveMin = 1
	}

	s := &directiveSearch{a: a, goal: goal}
	if goal == canon.GoalConsensus {
		s.similarity = consensusSimilarity(a, in.Agreement)
	}

	medoids := farthestPointMedoids(a, k)
	clusters := assignToMedoids(a, medoids)
	repairEmpty(a, clusters, medoids, effectiveMin)

	objective := make([]float64, len(clusters))
	for c := range clusters {
		objective[c] = s.value(clusters[c])
	}

	iterations, moves := 0, 0
	for iterations < maxIterations {
		iterations++
		p, from, to, gain := s.bestMove(clusters, objective, effectiveMin)
		if gain <= canon.ImprovementEpsilon {
			break
		}
		clusters[from] = without(clusters[from], p)
		clusters[to] = append(clusters[to], p)
		objective[from] = s.value(clusters[from])
		objective[to] = s.value(clusters[to])
		medoids[from] = medoidOf(a, clusters[from])
		medoids[to] = medoidOf(a, clusters[to])
		moves++
	}

	labels := make([]string, n)
	scores := make([]float64, n)
	medoidIDs := make([]string, len(clusters))
	for c, members := range clusters {
		id := fmt.Sprintf("directive-%d", c)
		medoidIDs[c] = a.PlotPointIDs[medoids[c]]
		for _, i := range members {
			labels[i] = id
			scores[i] = 1 - cosineDistance(a, i, medoids[c])
		}
	}

	return finish(in, labels, scores, map[string]any{
		"iterations":                 iterations,
		"moves":                      moves,
		"goal":                       goal,
		"objective":                  sum(objective),
		"effective_min_cluster_size": effectiveMin,
		"medoids":                    medoidIDs,
	}), nil
}

type directiveSearch struct {
	a          *matrix.Assignment
	goal       string
	similarity [][]float64
}

// value scores one cluster; higher is better.
func (s *directiveSearch) value(members []int) float64 {
	switch s.goal {
	case canon.GoalVariance:
		hist := columnHistogram(s.a.Values, members, s.a.Cols())
		return metrics.NormalizedEntropyOf(hist, s.a.Cols()) * float64(len(members))
	case canon.GoalConsensus:
		total := 0.0
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				total += s.similarity[members[x]][members[y]]
			}
		}
		return total
	default:
		hist := columnHistogram(s.a.Values, members, s.a.Cols())
		_, peak := argmax(hist)
		return peak
	}
}

// bestMove finds the single point move with the largest objective gain that
// leaves the donor at or above minSize.
func (s *directiveSearch) bestMove(clusters [][]int, objective []float64, minSize int) (point, from, to int, gain float64) {
	gain = 0
	point, from, to = -1, -1, -1
	for c, members := range clusters {
		if len(members)-1 < minSize {
			continue
		}
		for _, p := range members {
			donor := s.value(without(members, p)) - objective[c]
			for d := range clusters {
				if d == c {
					continue
				}
				receiver := s.value(append(append([]int(nil), clusters[d]...), p)) - objective[d]
				if delta := donor + receiver; delta > gain {
					point, from, to, gain = p, c, d, delta
				}
			}
		}
	}
	return point, from, to, gain
}

func consensusSimilarity(a *matrix.Assignment, g *matrix.Agreement) [][]float64 {
	if g != nil {
		return g.Values
	}
	n := a.Rows()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := matrix.Cosine(a.Values[i], a.Values[j])
			out[i][j], out[j][i] = v, v
		}
	}
	return out
}

func cosineDistance(a *matrix.Assignment, i, j int) float64 {
	if i == j {
		return 0
	}
	return 1 - matrix.Cosine(a.Values[i], a.Values[j])
}

// farthestPointMedoids seeds with the highest-norm row, then repeatedly adds
// the point whose nearest existing medoid is farthest away.
func farthestPointMedoids(a *matrix.Assignment, k int) []int {
	n := a.Rows()
	seed, seedNorm := 0, -1.0
	for i := 0; i < n; i++ {
		if norm := matrix.Norm(a.Values[i]); norm > seedNorm {
			seed, seedNorm = i, norm
		}
	}
	medoids := []int{seed}
	chosen := map[int]bool{seed: true}
	for len(medoids) < k {
		next, nextDist := -1, -1.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			nearest := 2.0
			for _, m := range medoids {
				if d := cosineDistance(a, i, m); d < nearest {
					nearest = d
				}
			}
			if nearest > nextDist {
				next, nextDist = i, nearest
			}
		}
		if next < 0 {
			break
		}
		medoids = append(medoids, next)
		chosen[next] = true
	}
	return medoids
}

func assignToMedoids(a *matrix.Assignment, medoids []int) [][]int {
	clusters := make([][]int, len(medoids))
	owner := make(map[int]int, len(medoids))
	for c, m := range medoids {
		owner[m] = c
	}
	for i := 0; i < a.Rows(); i++ {
		if c, ok := owner[i]; ok {
			clusters[c] = append(clusters[c], i)
			continue
		}
		best, bestDist := 0, 3.0
		for c, m := range medoids {
			if d := cosineDistance(a, i, m); d < bestDist {
				best, bestDist = c, d
			}
		}
		clusters[best] = append(clusters[best], i)
	}
	return clusters
}

// repairEmpty refills empty clusters by stealing the member farthest from
// the medoid of the largest cluster that can spare one.
func repairEmpty(a *matrix.Assignment, clusters [][]int, medoids []int, minSize int) {
	for c := range clusters {
		if len(clusters[c]) > 0 {
			continue
		}
		donor := -1
		for d := range clusters {
			if len(clusters[d]) > minSize && (donor < 0 || len(clusters[d]) > len(clusters[donor])) {
				donor = d
			}
		}
		if donor < 0 {
			for d := range clusters {
				if len(clusters[d]) > 1 && (donor < 0 || len(clusters[d]) > len(clusters[donor])) {
					donor = d
				}
			}
		}
		if donor < 0 {
			continue
		}
		far, farDist := -1, -1.0
		for _, p := range clusters[donor] {
			if p == medoids[donor] {
				continue
			}
			if d := cosineDistance(a, p, medoids[donor]); d > farDist {
				far, farDist = p, d
			}
		}
		if far < 0 {
			continue
		}
		clusters[donor] = without(clusters[donor], far)
		clusters[c] = []int{far}
		medoids[c] = far
	}
}

// medoidOf returns the member with the smallest total distance to the rest.
func medoidOf(a *matrix.Assignment, members []int) int {
	best, bestTotal := -1, 0.0
	for _, i := range members {
		total := 0.0
		for _, j := range members {
			total += cosineDistance(a, i, j)
		}
		if best < 0 || total < bestTotal {
			best, bestTotal = i, total
		}
	}
	return best
}

func without(members []int, p int) []int {
	out := make([]int, 0, len(members))
	for _, i := range members {
		if i != p {
			out = append(out, i)
		}
	}
	return out
}
