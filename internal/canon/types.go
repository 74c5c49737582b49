// Package canon holds the data model shared by the canonicalization core:
// plot points and their collaborator-category tags, the canonical partition
// a run produces, and the run record handed to history storage.
package canon

// CategoryAssignment is one collaborator's tag on a plot point.
type CategoryAssignment struct {
	PlotPointID  string   `json:"plot_point_id" yaml:"plot_point_id"`
	CategoryID   string   `json:"category_id" yaml:"category_id"`
	Collaborator string   `json:"collaborator" yaml:"collaborator"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Weight       *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// EffectiveWeight returns the tag weight, defaulting to 1 when unset.
func (a CategoryAssignment) EffectiveWeight() float64 {
	if a.Weight == nil {
		return 1
	}
	return *a.Weight
}

// PlotPoint is a single narrative beat being categorized.
type PlotPoint struct {
	ID          string               `json:"id" yaml:"id"`
	Text        string               `json:"text" yaml:"text"`
	Order       int                  `json:"order" yaml:"order"`
	Label       string               `json:"label,omitempty" yaml:"label,omitempty"`
	Assignments []CategoryAssignment `json:"assignments,omitempty" yaml:"assignments,omitempty"`
}

// CollaboratorCategory is one collaborator's personal tag definition.
type CollaboratorCategory struct {
	ID           string `json:"id" yaml:"id"`
	MythID       string `json:"myth_id" yaml:"myth_id"`
	Collaborator string `json:"collaborator" yaml:"collaborator"`
	Name         string `json:"name" yaml:"name"`
}

// CanonicalAssignment places one plot point into one canonical cluster.
type CanonicalAssignment struct {
	PlotPointID string   `json:"plot_point_id"`
	CanonicalID string   `json:"canonical_id"`
	Score       *float64 `json:"score,omitempty"`
}

// MetricSummary describes the quality of a canonical partition.
type MetricSummary struct {
	Coverage           float64            `json:"coverage"`
	PurityByCanonical  map[string]float64 `json:"purity_by_canonical"`
	EntropyByCanonical map[string]float64 `json:"entropy_by_canonical"`
	AgreementGain      *float64           `json:"agreement_gain,omitempty"`
}

// ClonePlotPoints deep-copies points so a run never aliases caller-owned
// slices or weights.
func ClonePlotPoints(points []PlotPoint) []PlotPoint {
	out := make([]PlotPoint, len(points))
	for i, p := range points {
		cp := p
		if len(p.Assignments) > 0 {
			cp.Assignments = make([]CategoryAssignment, len(p.Assignments))
			for j, a := range p.Assignments {
				if a.Weight != nil {
					w := *a.Weight
					a.Weight = &w
				}
				cp.Assignments[j] = a
			}
		}
		out[i] = cp
	}
	return out
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
