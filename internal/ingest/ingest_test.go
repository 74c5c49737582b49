package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/canon/internal/canon"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

const yamlDataset = `myth_id: orpheus
variants:
  - id: ovid
  - id: virgil
categories:
  - id: a-descent
    collaborator: ana
    name: Descent
plot_points:
  - id: p1
    text: Orpheus descends
    order: 1
    assignments:
      - category_id: a-descent
        collaborator: ana
      - category_id: b-underworld
        collaborator: ben
        name: Underworld
        weight: 0.5
  - id: p2
    text: He looks back
    order: 2
`

func TestYAMLImporter(t *testing.T) {
	path := writeFile(t, "orpheus.yaml", yamlDataset)
	ds, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if ds.MythID != "orpheus" || len(ds.Variants) != 2 || len(ds.PlotPoints) != 2 {
		t.Fatalf("unexpected dataset header: %+v", ds)
	}
	tags := ds.PlotPoints[0].Assignments
	if len(tags) != 2 || tags[0].PlotPointID != "p1" {
		t.Fatalf("expected tag plot point ids filled in, got %+v", tags)
	}
	if tags[1].Weight == nil || *tags[1].Weight != 0.5 {
		t.Fatalf("weight lost: %+v", tags[1])
	}
	if len(ds.Categories) != 2 {
		t.Fatalf("expected undeclared category derived, got %d categories", len(ds.Categories))
	}
	derived := ds.Categories[1]
	if derived.ID != "b-underworld" || derived.Name != "Underworld" || derived.MythID != "orpheus" || derived.Collaborator != "ben" {
		t.Fatalf("unexpected derived category: %+v", derived)
	}
	if ds.Categories[0].MythID != "orpheus" {
		t.Fatalf("declared category missing myth id: %+v", ds.Categories[0])
	}
	if err := Validate(ds); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestYAMLImporterMultiDocument(t *testing.T) {
	path := writeFile(t, "split.yml", `myth_id: orpheus
variants: [{id: ovid}]
plot_points:
  - id: p1
    assignments: [{category_id: a, collaborator: ana}]
---
plot_points:
  - id: p2
`)
	ds, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.MythID != "orpheus" || len(ds.PlotPoints) != 2 {
		t.Fatalf("documents not merged: %+v", ds)
	}
}

func TestYAMLImporterRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "typo.yaml", "myth_id: m\nplot_pointz: []\n")
	if _, err := NewLoader().Load(context.Background(), path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestJSONImporter(t *testing.T) {
	path := writeFile(t, "myth.json", `{
  "myth_id": "gilgamesh",
  "variants": [{"id": "standard"}],
  "plot_points": [
    {"id": "p1", "text": "Enkidu dies", "assignments": [{"category_id": "loss", "collaborator": "ana"}]},
    {"id": "p2", "text": "Search for immortality"}
  ]
}`)
	ds, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.MythID != "gilgamesh" || len(ds.PlotPoints) != 2 || len(ds.Categories) != 1 {
		t.Fatalf("unexpected dataset: %+v", ds)
	}
	if ds.PlotPoints[0].Assignments[0].EffectiveWeight() != 1 {
		t.Fatal("expected default weight 1")
	}
}

func TestJSONImporterInvalid(t *testing.T) {
	path := writeFile(t, "bad.json", `{"myth_id": `)
	_, err := NewLoader().Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestCSVImporter(t *testing.T) {
	path := writeFile(t, "beowulf.csv", `plot_point_id,text,order,variant,collaborator,category,category_name,weight
p1,Grendel attacks,1,ms-a,ana,monster,Monster,
p1,,,ms-a,ben,threat,,0.5
p2,The mother avenges,2,ms-b,ana,monster,,
p3,The dragon wakes,3,ms-b,,,,
`)
	ds, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.MythID != "beowulf" {
		t.Fatalf("expected myth id from file name, got %q", ds.MythID)
	}
	if len(ds.PlotPoints) != 3 || len(ds.Variants) != 2 {
		t.Fatalf("unexpected counts: %d points, %d variants", len(ds.PlotPoints), len(ds.Variants))
	}
	p1 := ds.PlotPoints[0]
	if p1.Text != "Grendel attacks" || p1.Order != 1 || len(p1.Assignments) != 2 {
		t.Fatalf("unexpected p1: %+v", p1)
	}
	if w := p1.Assignments[1].Weight; w == nil || *w != 0.5 {
		t.Fatalf("expected weight 0.5, got %v", w)
	}
	if len(ds.PlotPoints[2].Assignments) != 0 {
		t.Fatal("p3 should be untagged")
	}
	if len(ds.Categories) != 2 || ds.Categories[0].Name != "Monster" || ds.Categories[1].Name != "threat" {
		t.Fatalf("unexpected categories: %+v", ds.Categories)
	}
}

func TestCSVImporterTSVAndErrors(t *testing.T) {
	path := writeFile(t, "m.tsv", "plot_point_id\tcollaborator\tcategory\np1\tana\tx\n")
	ds, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load TSV: %v", err)
	}
	if len(ds.PlotPoints) != 1 || len(ds.PlotPoints[0].Assignments) != 1 {
		t.Fatalf("unexpected TSV dataset: %+v", ds)
	}

	path = writeFile(t, "nocol.csv", "id,text\np1,hello\n")
	if _, err := NewLoader().Load(context.Background(), path); err == nil || !strings.Contains(err.Error(), "plot_point_id") {
		t.Fatalf("expected missing column error, got %v", err)
	}

	path = writeFile(t, "badweight.csv", "plot_point_id,collaborator,category,weight\np1,ana,x,heavy\n")
	if _, err := NewLoader().Load(context.Background(), path); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected weight parse error on line 2, got %v", err)
	}
}

func TestLoadUnsupportedAndOversized(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")
	if _, err := NewLoader().Load(context.Background(), path); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported error, got %v", err)
	}

	path = writeFile(t, "big.json", `{"myth_id": "m"}`)
	l := NewLoader()
	l.MaxFileSize = 4
	if _, err := l.Load(context.Background(), path); err == nil || !strings.Contains(err.Error(), "limit") {
		t.Fatalf("expected size limit error, got %v", err)
	}

	if _, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNormalizeRejectsBadPlotPoints(t *testing.T) {
	dup := &Dataset{PlotPoints: []canon.PlotPoint{{ID: "p1"}, {ID: "p1"}}}
	if err := Normalize(dup); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	noID := &Dataset{PlotPoints: []canon.PlotPoint{{Text: "anonymous"}}}
	if err := Normalize(noID); err == nil {
		t.Fatal("expected error for missing id")
	}

	neg := -1.0
	negative := &Dataset{PlotPoints: []canon.PlotPoint{{ID: "p1", Assignments: []canon.CategoryAssignment{
		{CategoryID: "x", Collaborator: "ana", Weight: &neg},
	}}}}
	if err := Normalize(negative); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected negative weight error, got %v", err)
	}
}

func TestValidatePreconditions(t *testing.T) {
	tag := canon.CategoryAssignment{CategoryID: "x", Collaborator: "ana"}
	tests := []struct {
		name string
		ds   *Dataset
		want error
	}{
		{"nil", nil, ErrNoVariants},
		{"no variants", &Dataset{PlotPoints: []canon.PlotPoint{{ID: "p1"}}}, ErrNoVariants},
		{"no plot points", &Dataset{Variants: []Variant{{ID: "v"}}}, ErrNoPlotPoints},
		{"no tags", &Dataset{Variants: []Variant{{ID: "v"}}, PlotPoints: []canon.PlotPoint{{ID: "p1"}}}, ErrNoTags},
		{"ok", &Dataset{Variants: []Variant{{ID: "v"}}, PlotPoints: []canon.PlotPoint{{ID: "p1"}, {ID: "p2", Assignments: []canon.CategoryAssignment{tag}}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ds)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
	if ErrNoPlotPoints.Error() != "Add at least one plot point before running canonicalization." {
		t.Fatalf("unexpected message: %q", ErrNoPlotPoints.Error())
	}
}
