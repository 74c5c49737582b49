package codec

import (
	"bytes"
	"testing"

	"github.com/hurttlocker/canon/internal/canon"
)

func samplePoints() []canon.PlotPoint {
	return []canon.PlotPoint{
		{ID: "p1", Text: "The hero leaves home", Order: 1, Assignments: []canon.CategoryAssignment{
			{PlotPointID: "p1", CategoryID: "ana:departure", Collaborator: "ana", Weight: canon.Float64(0.5)},
		}},
		{ID: "p2", Text: "The hero returns", Order: 2},
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := samplePoints()
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded []canon.PlotPoint
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ID != "p1" || decoded[1].Text != "The hero returns" {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	if w := decoded[0].Assignments[0].Weight; w == nil || *w != 0.5 {
		t.Fatalf("weight lost in roundtrip: %v", w)
	}
}

func TestMarshalDeterministicMaps(t *testing.T) {
	a := map[string]float64{"z": 1, "a": 2, "m": 3}
	b := map[string]float64{"m": 3, "z": 1, "a": 2}
	first, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(b)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic on attempt %d", i)
		}
	}
}

func TestDigest(t *testing.T) {
	first, err := Digest(samplePoints())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(first), first)
	}
	second, err := Digest(samplePoints())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if first != second {
		t.Fatalf("digest changed between identical inputs: %s vs %s", first, second)
	}

	changed := samplePoints()
	changed[1].Text = "The hero never returns"
	third, err := Digest(changed)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if third == first {
		t.Fatal("digest did not change when input changed")
	}
}
