package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/matrix"
)

const (
	defaultFactorizationIterations = 200
	defaultFactorizationTolerance  = 1e-4
)

// FactorizationRunner clusters by non-negative matrix factorization of the
// assignment matrix; each plot point joins its strongest latent factor.
type FactorizationRunner struct{}

// Mode implements Runner.
func (FactorizationRunner) Mode() canon.Mode { return canon.ModeFactorization }

// Factors is the outcome of Factorize. W is rows x rank and H is rank x cols;
// either is nil when a dimension is zero.
type Factors struct {
	W          *mat.Dense
	H          *mat.Dense
	Rank       int
	Iterations int
	Residual   float64
}

// Run implements Runner.
func (FactorizationRunner) Run(in Input, params canon.Params) (*Result, error) {
	if in.Assignment == nil {
		return nil, canon.MissingAssignmentError("Factorization")
	}

	rank := params.Rank
	if rank <= 0 {
		rank = clampInt(in.Assignment.Cols(), 2, 5)
	}
	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultFactorizationIterations
	}
	tolerance := params.Tolerance
	if tolerance <= 0 {
		tolerance = defaultFactorizationTolerance
	}

	f := Factorize(in.Assignment, rank, maxIterations, tolerance, params.L1Reg)

	rows := in.Assignment.Rows()
	labels := make([]string, rows)
	scores := make([]float64, rows)
	for i := 0; i < rows; i++ {
		k, v := argmax(mat.Row(nil, i, f.W))
		labels[i] = fmt.Sprintf("factor-%d", k)
		scores[i] = v
	}

	return finish(in, labels, scores, map[string]any{
		"rank":       f.Rank,
		"iterations": f.Iterations,
		"residual":   f.Residual,
	}), nil
}

// Factorize approximates V (rows x cols) as W (rows x rank) * H (rank x cols)
// with multiplicative updates. Seeding is deterministic.
func Factorize(a *matrix.Assignment, rank, maxIterations int, tolerance, l1 float64) Factors {
	rows, cols := a.Rows(), a.Cols()
	f := Factors{Rank: rank}
	if rows == 0 || rank <= 0 {
		return f
	}
	f.W = mat.NewDense(rows, rank, nil)
	if cols == 0 {
		return f
	}
	f.H = mat.NewDense(rank, cols, nil)
	v, w, h := a.Dense(), f.W, f.H

	w.Apply(func(i, r int, _ float64) float64 {
		return float64(i+r+1) / float64(rank+rows)
	}, w)
	h.Apply(func(r, c int, _ float64) float64 {
		return float64(r+c+1) / float64(rank+cols)
	}, h)

	var hNum, hDen, wtw, wNum, wDen, hht mat.Dense
	prev := residual(v, w, h)
	for f.Iterations < maxIterations {
		f.Iterations++

		// H <- H .* (WᵀV) ./ (WᵀWH + l1 + eps)
		hNum.Mul(w.T(), v)
		wtw.Mul(w.T(), w)
		hDen.Mul(&wtw, h)
		multiplicativeUpdate(h, &hNum, &hDen, l1)

		// W <- W .* (VHᵀ) ./ (WHHᵀ + l1 + eps)
		wNum.Mul(v, h.T())
		hht.Mul(h, h.T())
		wDen.Mul(w, &hht)
		multiplicativeUpdate(w, &wNum, &wDen, l1)

		current := residual(v, w, h)
		if math.Abs(prev-current) <= tolerance {
			prev = current
			break
		}
		prev = current
	}

	f.Residual = prev
	return f
}

func multiplicativeUpdate(x, num, den *mat.Dense, l1 float64) {
	x.Apply(func(i, j int, v float64) float64 {
		return v * num.At(i, j) / (den.At(i, j) + l1 + canon.Epsilon)
	}, x)
}

// residual is the Frobenius norm of V - WH.
func residual(v, w, h *mat.Dense) float64 {
	var diff mat.Dense
	diff.Mul(w, h)
	diff.Sub(v, &diff)
	return mat.Norm(&diff, 2)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
