package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/hurttlocker/canon/internal/canon"
)

// HistoryStore persists completed and failed runs. List returns the most
// recent runs first; limit <= 0 means no limit.
type HistoryStore interface {
	Save(ctx context.Context, run *canon.Run) error
	List(ctx context.Context, mythID string, limit int) ([]*canon.Run, error)
}

// MemoryHistory is the in-process HistoryStore.
type MemoryHistory struct {
	mu   sync.Mutex
	runs []*canon.Run
}

// NewMemoryHistory returns an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Save implements HistoryStore.
func (h *MemoryHistory) Save(_ context.Context, run *canon.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

// List implements HistoryStore.
func (h *MemoryHistory) List(_ context.Context, mythID string, limit int) ([]*canon.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*canon.Run, 0)
	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].MythID == mythID {
			out = append(out, h.runs[i])
		}
	}
	// Newest insert first, then stable by timestamp.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
