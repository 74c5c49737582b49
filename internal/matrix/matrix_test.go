package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/canon/internal/canon"
)

func tag(point, category, collaborator string, weight ...float64) canon.CategoryAssignment {
	a := canon.CategoryAssignment{PlotPointID: point, CategoryID: category, Collaborator: collaborator}
	if len(weight) > 0 {
		a.Weight = canon.Float64(weight[0])
	}
	return a
}

func fixturePoints() []canon.PlotPoint {
	return []canon.PlotPoint{
		{ID: "p1", Order: 0, Assignments: []canon.CategoryAssignment{
			tag("p1", "c-hero", "ana@example.com"),
			tag("p1", "c-journey", "ana@example.com", 3),
			tag("p1", "b-call", "ben@example.com"),
		}},
		{ID: "p2", Order: 1, Assignments: []canon.CategoryAssignment{
			tag("p2", "b-call", "ben@example.com", 2),
		}},
		{ID: "p3", Order: 2},
	}
}

func TestBuildAssignmentMatrixFirstSeenOrder(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})

	assert.Equal(t, []string{"p1", "p2", "p3"}, m.PlotPointIDs)
	assert.Equal(t, []string{"c-hero", "c-journey", "b-call"}, m.CategoryIDs)
	assert.Equal(t, []float64{1, 3, 1}, m.Values[0])
	assert.Equal(t, []float64{0, 0, 2}, m.Values[1])
	assert.Equal(t, []float64{0, 0, 0}, m.Values[2])
}

func TestBuildAssignmentMatrixRowSums(t *testing.T) {
	points := fixturePoints()
	m := BuildAssignmentMatrix(points, AssignmentOptions{})
	for i, p := range points {
		want := 0.0
		for _, a := range p.Assignments {
			want += a.EffectiveWeight()
		}
		assert.InDelta(t, want, m.RowSum(i), 1e-12, "row %d", i)
	}
}

func TestBuildAssignmentMatrixNormalizesPerCollaborator(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{NormalizeWithinPlotPoint: true})

	// ana tagged p1 twice (1 + 3), ben once.
	assert.InDelta(t, 0.25, m.Values[0][0], 1e-12)
	assert.InDelta(t, 0.75, m.Values[0][1], 1e-12)
	assert.InDelta(t, 1.0, m.Values[0][2], 1e-12)
	assert.InDelta(t, 1.0, m.Values[0][0]+m.Values[0][1], 1e-12)
	assert.InDelta(t, 1.0, m.Values[1][2], 1e-12)
}

func TestBuildAssignmentMatrixTrustWeights(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{
		NormalizeWithinPlotPoint: true,
		CollaboratorWeights:      map[string]float64{"ben@example.com": 0.5},
	})
	assert.InDelta(t, 0.5, m.Values[0][2], 1e-12)
	assert.InDelta(t, 0.25, m.Values[0][0], 1e-12)
}

func TestBuildAssignmentMatrixExplicitCategories(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{CategoryIDs: []string{"b-call", "unused"}})

	assert.Equal(t, []string{"b-call", "unused"}, m.CategoryIDs)
	assert.Equal(t, []float64{1, 0}, m.Values[0])
	assert.Equal(t, []float64{2, 0}, m.Values[1])
}

func TestBuildAssignmentMatrixEmpty(t *testing.T) {
	m := BuildAssignmentMatrix(nil, AssignmentOptions{})
	assert.Equal(t, 0, m.Rows())
	assert.Equal(t, 0, m.Cols())

	g := BuildAgreementMatrix(m, AgreementOptions{Normalize: true})
	assert.Equal(t, 0, g.Size())
}

func TestBuildAssignmentMatrixDoesNotMutateInput(t *testing.T) {
	points := fixturePoints()
	before := canon.ClonePlotPoints(points)
	BuildAssignmentMatrix(points, AssignmentOptions{NormalizeWithinPlotPoint: true})
	assert.Equal(t, before, points)
}

func TestBuildAgreementMatrixSymmetric(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})
	for _, normalize := range []bool{false, true} {
		g := BuildAgreementMatrix(m, AgreementOptions{Normalize: normalize})
		require.Equal(t, 3, g.Size())
		for i := 0; i < g.Size(); i++ {
			for j := 0; j < g.Size(); j++ {
				assert.Equal(t, g.At(i, j), g.At(j, i))
			}
		}
	}
}

func TestBuildAgreementMatrixRawDotProducts(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})
	g := BuildAgreementMatrix(m, AgreementOptions{})

	assert.InDelta(t, 11.0, g.At(0, 0), 1e-12)
	assert.InDelta(t, 2.0, g.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0, g.At(0, 2), 1e-12)
}

func TestBuildAgreementMatrixCosine(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})
	g := BuildAgreementMatrix(m, AgreementOptions{Normalize: true})

	assert.Equal(t, 1.0, g.At(0, 0))
	assert.Equal(t, 1.0, g.At(1, 1))
	assert.Equal(t, 0.0, g.At(2, 2), "zero row has no self-similarity")
	assert.InDelta(t, 2.0/(2*3.3166247903554), g.At(0, 1), 1e-9)
	assert.Equal(t, 0.0, g.At(0, 2))
}

func TestProviderBuildsAgreementOnlyOnRequest(t *testing.T) {
	p := NewProvider(fixturePoints(), AssignmentOptions{})

	lean := p.Prepare(false)
	require.NotNil(t, lean.Assignment)
	assert.Nil(t, lean.Agreement)

	full := p.Prepare(true)
	require.NotNil(t, full.Agreement)
	assert.True(t, full.Agreement.Normalized)
	assert.Equal(t, full.Assignment.PlotPointIDs, full.Agreement.PlotPointIDs)
}

func TestCosineZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 0}))
	assert.InDelta(t, 1.0, Cosine([]float64{2, 0}, []float64{5, 0}), 1e-12)
}

func TestAssignmentDense(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})
	d := m.Dense()
	require.NotNil(t, d)
	r, c := d.Dims()
	assert.Equal(t, m.Rows(), r)
	assert.Equal(t, m.Cols(), c)
	for i := range m.Values {
		for j, v := range m.Values[i] {
			assert.Equal(t, v, d.At(i, j))
		}
	}

	assert.Nil(t, BuildAssignmentMatrix(nil, AssignmentOptions{}).Dense())
	untagged := BuildAssignmentMatrix([]canon.PlotPoint{{ID: "p1"}}, AssignmentOptions{})
	assert.Nil(t, untagged.Dense())
	g := BuildAgreementMatrix(untagged, AgreementOptions{Normalize: true})
	require.Equal(t, 1, g.Size())
	assert.Equal(t, 0.0, g.At(0, 0))
}

func TestBuildAgreementMatrixMatchesRowProducts(t *testing.T) {
	m := BuildAssignmentMatrix(fixturePoints(), AssignmentOptions{})
	raw := BuildAgreementMatrix(m, AgreementOptions{})
	cosine := BuildAgreementMatrix(m, AgreementOptions{Normalize: true})
	for i := range m.Values {
		for j := range m.Values {
			assert.InDelta(t, Dot(m.Values[i], m.Values[j]), raw.At(i, j), 1e-12, "raw %d,%d", i, j)
			if i != j {
				assert.InDelta(t, Cosine(m.Values[i], m.Values[j]), cosine.At(i, j), 1e-12, "cosine %d,%d", i, j)
			}
		}
	}
}
