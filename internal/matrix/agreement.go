package matrix

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Agreement is a symmetric plot-point x plot-point similarity matrix.
type Agreement struct {
	PlotPointIDs []string
	Values       [][]float64
	Normalized   bool
}

// Size returns the number of plot points.
func (g *Agreement) Size() int { return len(g.Values) }

// At returns the agreement weight between points i and j.
func (g *Agreement) At(i, j int) float64 { return g.Values[i][j] }

// AgreementOptions controls BuildAgreementMatrix.
type AgreementOptions struct {
	// Normalize divides each dot product by the rows' L2 norms (cosine).
	Normalize bool
}

// BuildAgreementMatrix computes the Gram matrix A·Aᵀ of a's rows, optionally
// scaled to cosine similarity.
func BuildAgreementMatrix(a *Assignment, opts AgreementOptions) *Agreement {
	n := a.Rows()
	out := &Agreement{
		PlotPointIDs: append([]string(nil), a.PlotPointIDs...),
		Values:       make([][]float64, n),
		Normalized:   opts.Normalize,
	}
	for i := range out.Values {
		out.Values[i] = make([]float64, n)
	}

	d := a.Dense()
	if d == nil {
		return out
	}
	var gram mat.SymDense
	gram.SymOuterK(1, d)

	norms := make([]float64, n)
	if opts.Normalize {
		for i := 0; i < n; i++ {
			norms[i] = math.Sqrt(gram.At(i, i))
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := gram.At(i, j)
			if opts.Normalize {
				switch {
				case norms[i] == 0 || norms[j] == 0:
					v = 0
				case i == j:
					v = 1
				default:
					v /= norms[i] * norms[j]
				}
			}
			out.Values[i][j] = v
			out.Values[j][i] = v
		}
	}
	return out
}

// Dot returns the dot product of two equal-length vectors.
func Dot(x, y []float64) float64 {
	return floats.Dot(x, y)
}

// Norm returns the L2 norm of x.
func Norm(x []float64) float64 {
	return floats.Norm(x, 2)
}

// Cosine returns the cosine similarity of x and y, or 0 when either is zero.
func Cosine(x, y []float64) float64 {
	nx, ny := Norm(x), Norm(y)
	if nx == 0 || ny == 0 {
		return 0
	}
	return Dot(x, y) / (nx * ny)
}
