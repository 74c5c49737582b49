// Package metrics scores a canonical partition: purity, normalized entropy,
// coverage and agreement gain, plus per-cluster prevalence totals.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

// Input is the snapshot a partition is scored against.
type Input struct {
	PlotPoints []canon.PlotPoint
	Categories []canon.CollaboratorCategory
	// Agreement enables the agreement-gain metric when non-nil.
	Agreement *matrix.Agreement
}

// Compute scores assignments against in. It is a pure function.
func Compute(assignments []canon.CanonicalAssignment, in Input) canon.MetricSummary {
	summary := canon.MetricSummary{
		PurityByCanonical:  make(map[string]float64),
		EntropyByCanonical: make(map[string]float64),
	}

	pointByID := make(map[string]canon.PlotPoint, len(in.PlotPoints))
	for _, p := range in.PlotPoints {
		pointByID[p.ID] = p
	}

	clusterOf := make(map[string]string, len(assignments))
	histograms := make(map[string]map[string]float64)
	for _, a := range assignments {
		clusterOf[a.PlotPointID] = a.CanonicalID
		hist, ok := histograms[a.CanonicalID]
		if !ok {
			hist = make(map[string]float64)
			histograms[a.CanonicalID] = hist
		}
		for _, tag := range pointByID[a.PlotPointID].Assignments {
			hist[tag.CategoryID] += tag.EffectiveWeight()
		}
	}

	normalizer := DistinctCategoryCount(in.PlotPoints, in.Categories)
	for id, hist := range histograms {
		summary.PurityByCanonical[id] = Purity(hist)
		summary.EntropyByCanonical[id] = NormalizedEntropy(hist, normalizer)
	}

	if len(in.PlotPoints) > 0 {
		covered := 0
		for _, p := range in.PlotPoints {
			if _, ok := clusterOf[p.ID]; ok {
				covered++
			}
		}
		summary.Coverage = float64(covered) / float64(len(in.PlotPoints))
	}

	if in.Agreement != nil {
		gain := AgreementGain(in.Agreement, clusterOf)
		summary.AgreementGain = &gain
	}
	return summary
}

// Purity is the dominant bucket's share of a histogram, 0 when empty.
func Purity(hist map[string]float64) float64 {
	values := histValues(hist)
	if len(values) == 0 {
		return 0
	}
	total := floats.Sum(values)
	if total <= 0 {
		return 0
	}
	return math.Max(floats.Max(values), 0) / total
}

// NormalizedEntropy is the Shannon entropy of hist divided by the entropy of
// a uniform spread over buckets. It is 0 when buckets <= 1 or the histogram
// is empty.
func NormalizedEntropy(hist map[string]float64, buckets int) float64 {
	if buckets <= 1 {
		return 0
	}
	return normalizedEntropy(histValues(hist), buckets)
}

// NormalizedEntropyOf is NormalizedEntropy over a dense weight vector.
func NormalizedEntropyOf(weights []float64, buckets int) float64 {
	if buckets <= 1 {
		return 0
	}
	return normalizedEntropy(weights, buckets)
}

func normalizedEntropy(values []float64, buckets int) float64 {
	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	total := floats.Sum(positive)
	if total <= 0 {
		return 0
	}
	floats.Scale(1/total, positive)
	h := stat.Entropy(positive)
	if h <= 0 {
		return 0
	}
	return h / math.Log(float64(buckets))
}

func histValues(hist map[string]float64) []float64 {
	values := make([]float64, 0, len(hist))
	for _, v := range hist {
		values = append(values, v)
	}
	return values
}

// AgreementGain sums agreement over every unordered point pair, adding it
// when both points share a canonical id and subtracting it otherwise.
func AgreementGain(g *matrix.Agreement, clusterOf map[string]string) float64 {
	gain := 0.0
	n := g.Size()
	for i := 0; i < n; i++ {
		ci, iok := clusterOf[g.PlotPointIDs[i]]
		for j := i + 1; j < n; j++ {
			w := g.At(i, j)
			if w == 0 {
				continue
			}
			cj, jok := clusterOf[g.PlotPointIDs[j]]
			if iok && jok && ci == cj {
				gain += w
			} else {
				gain -= w
			}
		}
	}
	return gain
}

// DistinctCategoryCount counts the collaborator categories known to the
// document: the declared list, widened by any tag that references an
// undeclared category.
func DistinctCategoryCount(points []canon.PlotPoint, categories []canon.CollaboratorCategory) int {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		seen[c.ID] = struct{}{}
	}
	for _, p := range points {
		for _, a := range p.Assignments {
			seen[a.CategoryID] = struct{}{}
		}
	}
	return len(seen)
}

// Prevalence totals collaborator tag weight per canonical id.
func Prevalence(assignments []canon.CanonicalAssignment, points []canon.PlotPoint) map[string]float64 {
	weightOf := make(map[string]float64, len(points))
	for _, p := range points {
		total := 0.0
		for _, a := range p.Assignments {
			total += a.EffectiveWeight()
		}
		weightOf[p.ID] = total
	}
	out := make(map[string]float64)
	for _, a := range assignments {
		out[a.CanonicalID] += weightOf[a.PlotPointID]
	}
	return out
}
