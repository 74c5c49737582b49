package canon

import "time"

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is the immutable record of one canonicalization.
type Run struct {
	ID          string                `json:"id"`
	MythID      string                `json:"myth_id"`
	Mode        Mode                  `json:"mode"`
	Params      Params                `json:"params"`
	Assignments []CanonicalAssignment `json:"assignments"`
	Prevalence  map[string]float64    `json:"prevalence"`
	Metrics     MetricSummary         `json:"metrics"`
	Diagnostics map[string]any        `json:"diagnostics,omitempty"`
	InputDigest string                `json:"input_digest,omitempty"`
	Status      string                `json:"status"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// CanonicalIDs returns the distinct canonical ids in first-seen order.
func (r *Run) CanonicalIDs() []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, a := range r.Assignments {
		if _, ok := seen[a.CanonicalID]; ok {
			continue
		}
		seen[a.CanonicalID] = struct{}{}
		ids = append(ids, a.CanonicalID)
	}
	return ids
}
