package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

func point(id string, categories ...string) canon.PlotPoint {
	p := canon.PlotPoint{ID: id}
	for _, c := range categories {
		p.Assignments = append(p.Assignments, canon.CategoryAssignment{PlotPointID: id, CategoryID: c, Collaborator: c + "@example.com"})
	}
	return p
}

func assign(pairs ...string) []canon.CanonicalAssignment {
	out := make([]canon.CanonicalAssignment, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, canon.CanonicalAssignment{PlotPointID: pairs[i], CanonicalID: pairs[i+1]})
	}
	return out
}

func TestComputePurityAndEntropy(t *testing.T) {
	points := []canon.PlotPoint{
		point("p1", "a"),
		point("p2", "a"),
		point("p3", "b"),
		point("p4", "c", "d"),
	}
	summary := Compute(assign("p1", "x", "p2", "x", "p3", "y", "p4", "y"), Input{PlotPoints: points})

	assert.InDelta(t, 1.0, summary.PurityByCanonical["x"], 1e-12)
	assert.InDelta(t, 0.0, summary.EntropyByCanonical["x"], 1e-12)

	// y holds b, c, d once each: purity 1/3, entropy log2(3)/log2(4).
	assert.InDelta(t, 1.0/3, summary.PurityByCanonical["y"], 1e-12)
	assert.InDelta(t, 0.7924812503605781, summary.EntropyByCanonical["y"], 1e-9)
	assert.Equal(t, 1.0, summary.Coverage)
	assert.Nil(t, summary.AgreementGain)
}

func TestComputeCoverageBounds(t *testing.T) {
	points := []canon.PlotPoint{point("p1", "a"), point("p2", "a"), point("p3"), point("p4")}

	partial := Compute(assign("p1", "x", "p3", "x"), Input{PlotPoints: points})
	assert.InDelta(t, 0.5, partial.Coverage, 1e-12)

	none := Compute(nil, Input{PlotPoints: points})
	assert.Equal(t, 0.0, none.Coverage)

	empty := Compute(nil, Input{})
	assert.Equal(t, 0.0, empty.Coverage)
}

func TestComputeEntropyZeroWithSingleCategoryDocument(t *testing.T) {
	points := []canon.PlotPoint{point("p1", "a"), point("p2", "a")}
	summary := Compute(assign("p1", "x", "p2", "x"), Input{PlotPoints: points})
	assert.Equal(t, 0.0, summary.EntropyByCanonical["x"])
}

func TestComputeAgreementGain(t *testing.T) {
	points := []canon.PlotPoint{point("p1", "a"), point("p2", "a"), point("p3", "b"), point("p4", "a", "b")}
	g := matrix.BuildAgreementMatrix(matrix.BuildAssignmentMatrix(points, matrix.AssignmentOptions{}), matrix.AgreementOptions{})

	together := Compute(assign("p1", "x", "p2", "x", "p3", "y", "p4", "x"), Input{PlotPoints: points, Agreement: g})
	require.NotNil(t, together.AgreementGain)
	// Pairs: p1p2 +1, p1p4 +1, p2p4 +1, p3p4 -1.
	assert.InDelta(t, 2.0, *together.AgreementGain, 1e-12)

	scattered := Compute(assign("p1", "x", "p2", "y", "p3", "z", "p4", "w"), Input{PlotPoints: points, Agreement: g})
	require.NotNil(t, scattered.AgreementGain)
	assert.InDelta(t, -4.0, *scattered.AgreementGain, 1e-12)
}

func TestDistinctCategoryCountMergesDeclaredAndObserved(t *testing.T) {
	points := []canon.PlotPoint{point("p1", "a", "b")}
	categories := []canon.CollaboratorCategory{{ID: "a"}, {ID: "z"}}
	assert.Equal(t, 3, DistinctCategoryCount(points, categories))
}

func TestPrevalence(t *testing.T) {
	points := []canon.PlotPoint{point("p1", "a", "b"), point("p2", "a"), point("p3")}
	points[1].Assignments[0].Weight = canon.Float64(2.5)

	prev := Prevalence(assign("p1", "x", "p2", "x", "p3", "y"), points)
	assert.InDelta(t, 4.5, prev["x"], 1e-12)
	assert.InDelta(t, 0.0, prev["y"], 1e-12)
}

func TestNormalizedEntropyOfDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, NormalizedEntropyOf([]float64{0, 0}, 4))
	assert.Equal(t, 0.0, NormalizedEntropyOf([]float64{1, 1}, 1))
	assert.InDelta(t, 1.0, NormalizedEntropyOf([]float64{1, 1}, 2), 1e-12)
}
