// Package matrix builds the numeric views the clustering runners consume:
// the plot-point x collaborator-category assignment matrix and the
// plot-point x plot-point agreement matrix derived from it.
//
// Builders never mutate their inputs; every call returns fresh slices.
package matrix

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hurttlocker/canon/internal/canon"
)

// Assignment is a dense plot-point x category weight matrix.
// Rows follow the input plot-point order.
type Assignment struct {
	PlotPointIDs []string
	CategoryIDs  []string
	Values       [][]float64
}

// Rows returns the number of plot points.
func (a *Assignment) Rows() int { return len(a.Values) }

// Cols returns the number of collaborator categories.
func (a *Assignment) Cols() int { return len(a.CategoryIDs) }

// RowSum returns the total weight on row i.
func (a *Assignment) RowSum(i int) float64 {
	return floats.Sum(a.Values[i])
}

// Dense copies a into a gonum matrix. It returns nil when a has no rows or
// no columns, since gonum rejects zero-sized dimensions.
func (a *Assignment) Dense() *mat.Dense {
	if a.Rows() == 0 || a.Cols() == 0 {
		return nil
	}
	d := mat.NewDense(a.Rows(), a.Cols(), nil)
	for i, row := range a.Values {
		d.SetRow(i, row)
	}
	return d
}

// AssignmentOptions controls BuildAssignmentMatrix.
type AssignmentOptions struct {
	// CategoryIDs fixes the column order. Tags on categories outside the
	// list are ignored. Empty means first-seen order over all tags.
	CategoryIDs []string `json:"category_ids,omitempty" yaml:"category_ids,omitempty"`
	// CollaboratorWeights scales each collaborator's tags (default 1).
	CollaboratorWeights map[string]float64 `json:"collaborator_weights,omitempty" yaml:"collaborator_weights,omitempty"`
	// NormalizeWithinPlotPoint divides each collaborator's tags on a point by
	// that collaborator's total on the point, so every collaborator
	// contributes at most 1 per plot point.
	NormalizeWithinPlotPoint bool `json:"normalize_within_plot_point,omitempty" yaml:"normalize_within_plot_point,omitempty"`
}

func (o AssignmentOptions) trust(collaborator string) float64 {
	if w, ok := o.CollaboratorWeights[collaborator]; ok {
		return w
	}
	return 1
}

// BuildAssignmentMatrix converts tagged plot points into an assignment matrix.
func BuildAssignmentMatrix(points []canon.PlotPoint, opts AssignmentOptions) *Assignment {
	categoryIDs := categoryOrder(points, opts.CategoryIDs)
	column := make(map[string]int, len(categoryIDs))
	for i, id := range categoryIDs {
		column[id] = i
	}

	out := &Assignment{
		PlotPointIDs: make([]string, len(points)),
		CategoryIDs:  categoryIDs,
		Values:       make([][]float64, len(points)),
	}

	for i, p := range points {
		out.PlotPointIDs[i] = p.ID
		row := make([]float64, len(categoryIDs))

		var collaboratorTotals map[string]float64
		if opts.NormalizeWithinPlotPoint {
			collaboratorTotals = make(map[string]float64)
			for _, a := range p.Assignments {
				collaboratorTotals[a.Collaborator] += a.EffectiveWeight()
			}
		}

		for _, a := range p.Assignments {
			j, ok := column[a.CategoryID]
			if !ok {
				continue
			}
			w := a.EffectiveWeight()
			if opts.NormalizeWithinPlotPoint {
				total := collaboratorTotals[a.Collaborator]
				if total == 0 {
					continue
				}
				w /= total
			}
			row[j] += w * opts.trust(a.Collaborator)
		}
		out.Values[i] = row
	}
	return out
}

func categoryOrder(points []canon.PlotPoint, explicit []string) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(explicit) > 0 {
		for _, id := range explicit {
			add(id)
		}
		return ids
	}
	for _, p := range points {
		for _, a := range p.Assignments {
			add(a.CategoryID)
		}
	}
	return ids
}
