package cluster

import "fmt"

// partition tracks a label per point and the clusters those labels form.
// Cluster order is the order of each label's first member.
type partition struct {
	labels []string
}

func newPartition(labels []string) *partition {
	return &partition{labels: append([]string(nil), labels...)}
}

type group struct {
	id      string
	members []int
}

func (p *partition) groups() []group {
	index := make(map[string]int)
	out := make([]group, 0)
	for i, label := range p.labels {
		k, ok := index[label]
		if !ok {
			k = len(out)
			index[label] = k
			out = append(out, group{id: label})
		}
		out[k].members = append(out[k].members, i)
	}
	return out
}

func (p *partition) count() int {
	seen := make(map[string]struct{})
	for _, l := range p.labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func (p *partition) relabel(from, to string) {
	for i, l := range p.labels {
		if l == from {
			p.labels[i] = to
		}
	}
}

// smallestGroup returns the index of the first group with the fewest members.
func smallestGroup(groups []group) int {
	best := 0
	for i := range groups {
		if len(groups[i].members) < len(groups[best].members) {
			best = i
		}
	}
	return best
}

// largestGroup returns the index of the first group with the most members.
func largestGroup(groups []group) int {
	best := 0
	for i := range groups {
		if len(groups[i].members) > len(groups[best].members) {
			best = i
		}
	}
	return best
}

// splitNamer mints split ids with a per-run counter so repeated runs over the
// same snapshot produce identical ids.
type splitNamer struct {
	next  int
	taken map[string]struct{}
}

func newSplitNamer(existing []string) *splitNamer {
	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}
	return &splitNamer{taken: taken}
}

func (s *splitNamer) name(base string) string {
	for {
		s.next++
		id := fmt.Sprintf("%s-split-%d", base, s.next)
		if _, ok := s.taken[id]; !ok {
			s.taken[id] = struct{}{}
			return id
		}
	}
}

// columnHistogram sums assignment rows for members into a dense vector.
func columnHistogram(values [][]float64, members []int, cols int) []float64 {
	hist := make([]float64, cols)
	for _, i := range members {
		for j, v := range values[i] {
			hist[j] += v
		}
	}
	return hist
}

// dominantShare returns max/total of a weight vector, 0 when empty.
func dominantShare(hist []float64) float64 {
	total, peak := 0.0, 0.0
	for _, v := range hist {
		total += v
		if v > peak {
			peak = v
		}
	}
	if total <= 0 {
		return 0
	}
	return peak / total
}

func argmax(values []float64) (int, float64) {
	best, bestValue := 0, 0.0
	for i, v := range values {
		if i == 0 || v > bestValue {
			best, bestValue = i, v
		}
	}
	return best, bestValue
}
