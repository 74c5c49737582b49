package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hurttlocker/canon/internal/canon"
)

// Loader picks an importer by extension and normalizes what it returns.
type Loader struct {
	importers   []Importer
	MaxFileSize int64
}

// NewLoader returns a Loader with every built-in importer.
func NewLoader() *Loader {
	return &Loader{
		importers: []Importer{
			&JSONImporter{},
			&YAMLImporter{},
			&CSVImporter{},
		},
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Load reads path into a normalized dataset. It does not Validate.
func (l *Loader) Load(ctx context.Context, path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("loading dataset: %s is a directory", path)
	}
	if l.MaxFileSize > 0 && info.Size() > l.MaxFileSize {
		return nil, fmt.Errorf("loading dataset: %s is %d bytes (limit %d)", path, info.Size(), l.MaxFileSize)
	}

	for _, imp := range l.importers {
		if !imp.CanHandle(path) {
			continue
		}
		ds, err := imp.Import(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := Normalize(ds); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return ds, nil
	}
	return nil, fmt.Errorf("loading dataset: unsupported file type %q (want .json, .yaml, .yml, .csv, .tsv)", path)
}

// Normalize fills ids the file format lets authors omit: tag plot point
// ids, category myth ids, and categories referenced by tags but never
// declared. Duplicate plot point ids are an error.
func Normalize(ds *Dataset) error {
	ds.MythID = strings.TrimSpace(ds.MythID)

	declared := make(map[string]struct{}, len(ds.Categories))
	for i := range ds.Categories {
		c := &ds.Categories[i]
		if c.MythID == "" {
			c.MythID = ds.MythID
		}
		declared[c.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(ds.PlotPoints))
	for i := range ds.PlotPoints {
		p := &ds.PlotPoints[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return fmt.Errorf("plot point %d has no id", i+1)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate plot point id %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		for j := range p.Assignments {
			a := &p.Assignments[j]
			if a.PlotPointID == "" {
				a.PlotPointID = p.ID
			}
			if a.CategoryID == "" {
				return fmt.Errorf("plot point %q tag %d has no category_id", p.ID, j+1)
			}
			if a.Weight != nil && *a.Weight < 0 {
				return fmt.Errorf("plot point %q tag %q has negative weight", p.ID, a.CategoryID)
			}
			if _, ok := declared[a.CategoryID]; ok {
				continue
			}
			declared[a.CategoryID] = struct{}{}
			name := a.Name
			if name == "" {
				name = a.CategoryID
			}
			ds.Categories = append(ds.Categories, canon.CollaboratorCategory{
				ID:           a.CategoryID,
				MythID:       ds.MythID,
				Collaborator: a.Collaborator,
				Name:         name,
			})
		}
	}
	return nil
}

// Validate checks the preconditions for running canonicalization over ds.
func Validate(ds *Dataset) error {
	if ds == nil || len(ds.Variants) == 0 {
		return ErrNoVariants
	}
	if len(ds.PlotPoints) == 0 {
		return ErrNoPlotPoints
	}
	for _, p := range ds.PlotPoints {
		if len(p.Assignments) > 0 {
			return nil
		}
	}
	return ErrNoTags
}
