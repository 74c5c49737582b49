package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hurttlocker/canon/internal/canon"
)

// CSVImporter handles .csv and .tsv tag tables. Each row is one
// collaborator's tag on one plot point:
//
//	plot_point_id,text,order,variant,collaborator,category,category_name,weight
//
// Only plot_point_id is required. Rows without a collaborator or category
// declare an untagged plot point. The myth id is the file's base name.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a tag table into a dataset.
func (c *CSVImporter) Import(ctx context.Context, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}

	base := filepath.Base(path)
	ds := &Dataset{MythID: strings.TrimSuffix(base, filepath.Ext(base))}
	if len(records) == 0 {
		return ds, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["plot_point_id"]; !ok {
		return nil, fmt.Errorf("parsing CSV %s: missing plot_point_id column", path)
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	pointIdx := make(map[string]int)
	seenVariant := make(map[string]struct{})
	seenCategory := make(map[string]struct{})

	for n, row := range records[1:] {
		line := n + 2
		id := field(row, "plot_point_id")
		if id == "" {
			return nil, fmt.Errorf("parsing CSV %s line %d: empty plot_point_id", path, line)
		}

		idx, ok := pointIdx[id]
		if !ok {
			idx = len(ds.PlotPoints)
			pointIdx[id] = idx
			ds.PlotPoints = append(ds.PlotPoints, canon.PlotPoint{ID: id, Order: idx})
		}
		p := &ds.PlotPoints[idx]
		if text := field(row, "text"); text != "" {
			p.Text = text
		}
		if raw := field(row, "order"); raw != "" {
			order, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing CSV %s line %d: order %q: %w", path, line, raw, err)
			}
			p.Order = order
		}

		if v := field(row, "variant"); v != "" {
			if _, ok := seenVariant[v]; !ok {
				seenVariant[v] = struct{}{}
				ds.Variants = append(ds.Variants, Variant{ID: v})
			}
		}

		collaborator, category := field(row, "collaborator"), field(row, "category")
		if collaborator == "" || category == "" {
			continue
		}
		tag := canon.CategoryAssignment{
			PlotPointID:  id,
			CategoryID:   category,
			Collaborator: collaborator,
			Name:         field(row, "category_name"),
		}
		if raw := field(row, "weight"); raw != "" {
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing CSV %s line %d: weight %q: %w", path, line, raw, err)
			}
			tag.Weight = &w
		}
		p.Assignments = append(p.Assignments, tag)

		if _, ok := seenCategory[category]; !ok {
			seenCategory[category] = struct{}{}
			name := tag.Name
			if name == "" {
				name = category
			}
			ds.Categories = append(ds.Categories, canon.CollaboratorCategory{
				ID:           category,
				MythID:       ds.MythID,
				Collaborator: collaborator,
				Name:         name,
			})
		}
	}
	return ds, nil
}
