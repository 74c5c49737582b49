package matrix

import "github.com/hurttlocker/canon/internal/canon"

// Prepared holds the matrices for one run. Agreement is nil unless requested.
type Prepared struct {
	Assignment *Assignment
	Agreement  *Agreement
}

// Provider produces matrices for a fixed plot-point snapshot.
type Provider struct {
	points []canon.PlotPoint
	opts   AssignmentOptions
}

// NewProvider wraps points and the assignment options used for every Prepare.
func NewProvider(points []canon.PlotPoint, opts AssignmentOptions) *Provider {
	return &Provider{points: points, opts: opts}
}

// Prepare rebuilds the assignment matrix and, only when withAgreement is set,
// the cosine-normalized agreement matrix.
func (p *Provider) Prepare(withAgreement bool) Prepared {
	out := Prepared{Assignment: BuildAssignmentMatrix(p.points, p.opts)}
	if withAgreement {
		out.Agreement = BuildAgreementMatrix(out.Assignment, AgreementOptions{Normalize: true})
	}
	return out
}
