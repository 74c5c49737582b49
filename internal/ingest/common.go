// Package ingest loads canonicalization datasets from disk. Each supported
// format (JSON, YAML, CSV/TSV tag tables) has its own importer implementing
// the Importer interface; Load dispatches by file extension and Validate
// enforces the preconditions a run needs before it reaches the core.
package ingest

import (
	"context"
	"errors"

	"github.com/hurttlocker/canon/internal/canon"
)

// Variant is one retelling of the myth that contributed plot points.
type Variant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Dataset is everything one canonicalization run reads.
type Dataset struct {
	MythID     string                       `json:"myth_id" yaml:"myth_id"`
	Variants   []Variant                    `json:"variants" yaml:"variants"`
	Categories []canon.CollaboratorCategory `json:"categories" yaml:"categories"`
	PlotPoints []canon.PlotPoint            `json:"plot_points" yaml:"plot_points"`
}

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file into a dataset.
	Import(ctx context.Context, path string) (*Dataset, error)
}

// DefaultMaxFileSize is 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Precondition errors raised by Validate.
var (
	ErrNoVariants   = errors.New("Add at least one variant before running canonicalization.")
	ErrNoPlotPoints = errors.New("Add at least one plot point before running canonicalization.")
	ErrNoTags       = errors.New("Add at least one collaborator category assignment before running canonicalization.")
)
