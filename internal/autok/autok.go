// Package autok estimates a good canonical category count from an
// assignment matrix. It agglomerates plot points by cosine similarity,
// records the merge-cost curve, and picks k by knee (elbow) detection or,
// when enabled, by the gap statistic against label-shuffled references.
package autok

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

// Selection reasons.
const (
	ReasonElbow    = "elbow"
	ReasonGap      = "gap"
	ReasonFallback = "fallback"
)

const (
	defaultMinK    = 2
	defaultMaxKCap = 10
)

// RandomSource yields uniform values in [0, 1).
type RandomSource func() float64

// Options controls Detect.
type Options struct {
	MinK int `json:"min_k,omitempty" yaml:"min_k,omitempty"`
	MaxK int `json:"max_k,omitempty" yaml:"max_k,omitempty"`
	// Gap enables the gap statistic.
	Gap bool `json:"gap,omitempty" yaml:"gap,omitempty"`
	// ReferenceRuns overrides DefaultReferenceRuns.
	ReferenceRuns int `json:"reference_runs,omitempty" yaml:"reference_runs,omitempty"`
	// Random drives reference shuffling; nil uses math/rand/v2.
	Random RandomSource `json:"-" yaml:"-"`
	// Agreement reuses a cosine-normalized agreement matrix when present.
	Agreement *matrix.Agreement `json:"-" yaml:"-"`
}

// CostPoint is the merge cost observed when k clusters remain.
type CostPoint struct {
	K    int     `json:"k"`
	Cost float64 `json:"cost"`
}

// ElbowResult is the knee of the cost curve.
type ElbowResult struct {
	K        int         `json:"k"`
	Distance float64     `json:"distance"`
	Series   []CostPoint `json:"series"`
}

// GapPoint is one evaluated k of the gap statistic.
type GapPoint struct {
	K      int     `json:"k"`
	Gap    float64 `json:"gap"`
	StdDev float64 `json:"std_dev"`
}

// GapResult is the gap-statistic selection.
type GapResult struct {
	K      int        `json:"k"`
	Runs   int        `json:"runs"`
	Series []GapPoint `json:"series"`
}

// Result is Detect's outcome.
type Result struct {
	SelectedK int          `json:"selected_k"`
	Reason    string       `json:"reason"`
	MinK      int          `json:"min_k"`
	MaxK      int          `json:"max_k"`
	Elbow     *ElbowResult `json:"elbow,omitempty"`
	Gap       *GapResult   `json:"gap,omitempty"`
}

// DefaultReferenceRuns scales reference curves down as inputs grow.
func DefaultReferenceRuns(points int) int {
	switch {
	case points > 200:
		return 2
	case points > 80:
		return 3
	default:
		return 4
	}
}

// Detect estimates the canonical category count for a.
func Detect(a *matrix.Assignment, opts Options) Result {
	n := a.Rows()
	minK := opts.MinK
	if minK <= 0 {
		minK = defaultMinK
	}
	maxK := opts.MaxK
	if maxK <= 0 {
		maxK = n - 1
		if maxK > defaultMaxKCap {
			maxK = defaultMaxKCap
		}
	}

	res := Result{MinK: minK, MaxK: maxK, SelectedK: fallbackK(minK, maxK, n), Reason: ReasonFallback}
	if n < 2 || maxK < minK {
		return res
	}

	g := opts.Agreement
	if g == nil || !g.Normalized || g.Size() != n {
		g = matrix.BuildAgreementMatrix(a, matrix.AgreementOptions{Normalize: true})
	}
	series := inRange(CostSeries(g.Values, minK), minK, maxK)

	if elbow := Elbow(series); elbow != nil {
		res.Elbow = elbow
		res.SelectedK, res.Reason = elbow.K, ReasonElbow
	}

	if opts.Gap {
		runs := opts.ReferenceRuns
		if runs <= 0 {
			runs = DefaultReferenceRuns(n)
		}
		random := opts.Random
		if random == nil {
			random = rand.Float64
		}
		if gap := gapStatistic(a, series, minK, maxK, runs, random); gap != nil {
			res.Gap = gap
			res.SelectedK, res.Reason = gap.K, ReasonGap
		}
	}
	return res
}

func fallbackK(minK, maxK, points int) int {
	k := (minK + maxK) / 2
	if k > points-1 {
		k = points - 1
	}
	if k < 1 {
		k = 1
	}
	return k
}

// CostSeries agglomerates singletons by average-linkage similarity down to
// minK clusters and returns cost(k) = 1 - best merge similarity, ascending
// by k.
func CostSeries(sim [][]float64, minK int) []CostPoint {
	n := len(sim)
	if minK < 1 {
		minK = 1
	}
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	// pair[i][j] holds the summed similarity between clusters i and j so each
	// merge updates linkage in O(n).
	pair := make([][]float64, n)
	for i := range pair {
		pair[i] = append([]float64(nil), sim[i]...)
	}

	out := make([]CostPoint, 0, n)
	for len(clusters) > minK {
		bi, bj, best := -1, -1, math.Inf(-1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				avg := pair[i][j] / float64(len(clusters[i])*len(clusters[j]))
				if avg > best {
					bi, bj, best = i, j, avg
				}
			}
		}

		clusters[bi] = append(clusters[bi], clusters[bj]...)
		for k := range pair {
			pair[bi][k] += pair[bj][k]
			pair[k][bi] = pair[bi][k]
		}
		clusters = append(clusters[:bj], clusters[bj+1:]...)
		pair = append(pair[:bj], pair[bj+1:]...)
		for k := range pair {
			pair[k] = append(pair[k][:bj], pair[k][bj+1:]...)
		}

		out = append(out, CostPoint{K: len(clusters), Cost: 1 - best})
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func inRange(series []CostPoint, minK, maxK int) []CostPoint {
	out := make([]CostPoint, 0, len(series))
	for _, p := range series {
		if p.K >= minK && p.K <= maxK {
			out = append(out, p)
		}
	}
	return out
}

// Elbow returns the point of series farthest from the chord joining its
// first and last (k, cost) points. Ties resolve to the smaller k. It returns
// nil for an empty series.
func Elbow(series []CostPoint) *ElbowResult {
	if len(series) == 0 {
		return nil
	}
	first, last := series[0], series[len(series)-1]
	x1, y1 := float64(first.K), first.Cost
	x2, y2 := float64(last.K), last.Cost
	length := math.Hypot(x2-x1, y2-y1)

	best := &ElbowResult{K: first.K, Series: series}
	if length == 0 {
		return best
	}
	for _, p := range series {
		x, y := float64(p.K), p.Cost
		d := math.Abs((y2-y1)*x-(x2-x1)*y+x2*y1-y2*x1) / length
		if d > best.Distance {
			best.K, best.Distance = p.K, d
		}
	}
	return best
}

func gapStatistic(a *matrix.Assignment, observed []CostPoint, minK, maxK, runs int, random RandomSource) *GapResult {
	if len(observed) == 0 || runs <= 0 {
		return nil
	}

	refLogs := make(map[int][]float64)
	for r := 0; r < runs; r++ {
		shuffled := shuffleRows(a, random)
		g := matrix.BuildAgreementMatrix(shuffled, matrix.AgreementOptions{Normalize: true})
		for _, p := range inRange(CostSeries(g.Values, minK), minK, maxK) {
			refLogs[p.K] = append(refLogs[p.K], logCost(p.Cost))
		}
	}

	series := make([]GapPoint, 0, len(observed))
	for _, p := range observed {
		logs := refLogs[p.K]
		if len(logs) == 0 {
			continue
		}
		mean, sd := stat.PopMeanStdDev(logs, nil)
		series = append(series, GapPoint{K: p.K, Gap: mean - logCost(p.Cost), StdDev: sd})
	}
	if len(series) == 0 {
		return nil
	}

	correction := math.Sqrt(1 + 1/float64(runs))
	selected := -1
	for i := 0; i+1 < len(series); i++ {
		next := series[i+1]
		if next.K != series[i].K+1 {
			continue
		}
		if series[i].Gap >= next.Gap-next.StdDev*correction {
			selected = series[i].K
			break
		}
	}
	if selected < 0 {
		bestGap := math.Inf(-1)
		for _, p := range series {
			if p.Gap > bestGap {
				selected, bestGap = p.K, p.Gap
			}
		}
	}
	return &GapResult{K: selected, Runs: runs, Series: series}
}

// shuffleRows permutes each row's weights across columns, keeping each
// point's tag mass but randomizing which categories carry it.
func shuffleRows(a *matrix.Assignment, random RandomSource) *matrix.Assignment {
	out := &matrix.Assignment{
		PlotPointIDs: a.PlotPointIDs,
		CategoryIDs:  a.CategoryIDs,
		Values:       make([][]float64, len(a.Values)),
	}
	for i, row := range a.Values {
		shuffled := append([]float64(nil), row...)
		for x := len(shuffled) - 1; x > 0; x-- {
			y := int(random() * float64(x+1))
			if y > x {
				y = x
			}
			shuffled[x], shuffled[y] = shuffled[y], shuffled[x]
		}
		out.Values[i] = shuffled
	}
	return out
}

func logCost(c float64) float64 {
	return math.Log(math.Max(c, canon.Epsilon))
}
