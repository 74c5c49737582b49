package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLImporter handles .yaml and .yml files.
type YAMLImporter struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Import parses a YAML dataset. Multi-document YAML (separated by ---) is
// merged: later documents append variants, categories, and plot points, and
// the first non-empty myth_id wins.
func (y *YAMLImporter) Import(ctx context.Context, path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	out := &Dataset{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	for docNum := 1; ; docNum++ {
		var doc Dataset
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid YAML in %s (document %d): %w", path, docNum, err)
		}
		if out.MythID == "" {
			out.MythID = doc.MythID
		}
		out.Variants = append(out.Variants, doc.Variants...)
		out.Categories = append(out.Categories, doc.Categories...)
		out.PlotPoints = append(out.PlotPoints, doc.PlotPoints...)
	}
	return out, nil
}
