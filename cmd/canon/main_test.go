package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/codec"
)

const datasetYAML = `myth_id: orpheus
variants:
  - id: ovid
plot_points:
  - id: p1
    assignments: [{category_id: a-quest, collaborator: ana}, {category_id: b-journey, collaborator: ben}]
  - id: p2
    assignments: [{category_id: a-quest, collaborator: ana}, {category_id: b-journey, collaborator: ben}]
  - id: p3
    assignments: [{category_id: a-love, collaborator: ana}, {category_id: b-romance, collaborator: ben}]
  - id: p4
    assignments: [{category_id: a-love, collaborator: ana}, {category_id: b-romance, collaborator: ben}]
  - id: p5
    assignments: [{category_id: a-death, collaborator: ana}, {category_id: b-loss, collaborator: ben}]
  - id: p6
    assignments: [{category_id: a-death, collaborator: ana}, {category_id: b-loss, collaborator: ben}]
`

// testEnv isolates a CLI invocation from the user's config and database.
type testEnv struct {
	dir     string
	dataset string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "orpheus.yaml")
	if err := os.WriteFile(dataset, []byte(datasetYAML), 0o600); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	t.Setenv("CANON_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("CANON_DB", filepath.Join(dir, "canon.db"))
	t.Setenv("CANON_MODE", "")
	t.Setenv("CANON_LOG_LEVEL", "error")
	return testEnv{dir: dir, dataset: dataset}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionAndUsage(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 || !strings.Contains(out, "canon "+version) {
		t.Fatalf("version: code=%d out=%q", code, out)
	}

	code, out, _ = runCLI(t)
	if code != 0 || !strings.Contains(out, "Commands:") {
		t.Fatalf("usage: code=%d out=%q", code, out)
	}
}

func TestUnknownCommand(t *testing.T) {
	newTestEnv(t)
	code, _, errOut := runCLI(t, "frobnicate")
	if code != 1 || !strings.Contains(errOut, "Unknown command: frobnicate") {
		t.Fatalf("code=%d stderr=%q", code, errOut)
	}
}

func TestRunShowAndList(t *testing.T) {
	env := newTestEnv(t)

	code, out, errOut := runCLI(t, "run", env.dataset, "--mode", "hierarchical", "--target", "3", "--format", "json")
	if code != 0 {
		t.Fatalf("run failed: code=%d stderr=%s", code, errOut)
	}
	var got canon.Run
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parsing run output: %v\n%s", err, out)
	}
	if got.Mode != canon.ModeHierarchical || len(got.CanonicalIDs()) != 3 {
		t.Fatalf("unexpected run: mode=%s clusters=%d", got.Mode, len(got.CanonicalIDs()))
	}

	code, out, errOut = runCLI(t, "show", got.ID)
	if code != 0 {
		t.Fatalf("show failed: %s", errOut)
	}
	if !strings.Contains(out, "Run "+got.ID) || !strings.Contains(out, "CANONICAL") || !strings.Contains(out, "100.0%") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	code, out, errOut = runCLI(t, "runs", "orpheus")
	if code != 0 {
		t.Fatalf("runs failed: %s", errOut)
	}
	if !strings.Contains(out, got.ID) || !strings.Contains(out, "hierarchical") {
		t.Fatalf("unexpected runs output:\n%s", out)
	}
}

func TestRunFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)

	code, _, errOut := runCLI(t, "run", env.dataset, "--target", "9")
	if code != 1 {
		t.Fatalf("expected failure, got code %d", code)
	}
	if !strings.Contains(errOut, "Error: Cannot request 9 canonical categories with only 6 plot points available.\n") {
		t.Fatalf("unexpected stderr: %s", errOut)
	}

	code, out, _ := runCLI(t, "runs", "orpheus", "--format", "json")
	if code != 0 {
		t.Fatalf("runs failed")
	}
	var runs []canon.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("parsing runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != canon.StatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	if runs[0].Error != "Cannot request 9 canonical categories with only 6 plot points available." {
		t.Fatalf("unexpected recorded error: %q", runs[0].Error)
	}
}

func TestRunRejectsInvalidDataset(t *testing.T) {
	env := newTestEnv(t)
	empty := filepath.Join(env.dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"myth_id": "m", "variants": [{"id": "v"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "run", empty)
	if code != 1 || !strings.Contains(errOut, "Add at least one plot point") {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}

	code, _, errOut = runCLI(t, "run", env.dataset, "--mode", "spectral")
	if code != 1 || !strings.Contains(errOut, "unknown canonicalization mode") {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}
}

func TestRunsCBORExport(t *testing.T) {
	env := newTestEnv(t)
	if code, _, errOut := runCLI(t, "run", env.dataset, "--mode", "factorization"); code != 0 {
		t.Fatalf("run failed: %s", errOut)
	}

	outPath := filepath.Join(env.dir, "runs.cbor")
	if code, _, errOut := runCLI(t, "runs", "orpheus", "--format", "cbor", "--out", outPath); code != 0 {
		t.Fatalf("export failed: %s", errOut)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var runs []canon.Run
	if err := codec.Unmarshal(data, &runs); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(runs) != 1 || runs[0].Mode != canon.ModeFactorization || len(runs[0].Assignments) != 6 {
		t.Fatalf("unexpected export: %+v", runs)
	}
}

func TestAutoKCommand(t *testing.T) {
	env := newTestEnv(t)
	code, out, errOut := runCLI(t, "autok", env.dataset, "--min-k", "2", "--max-k", "5")
	if code != 0 {
		t.Fatalf("autok failed: %s", errOut)
	}
	if !strings.Contains(out, "Selected k: 3 (elbow") {
		t.Fatalf("unexpected autok output:\n%s", out)
	}
}

func TestCompareCommand(t *testing.T) {
	env := newTestEnv(t)
	code, out, errOut := runCLI(t, "compare", env.dataset, "--target", "3", "--format", "json")
	if code != 0 {
		t.Fatalf("compare failed: %s", errOut)
	}
	var rows []compareRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parsing compare output: %v\n%s", err, out)
	}
	if len(rows) != len(canon.Modes()) {
		t.Fatalf("expected %d rows, got %d", len(canon.Modes()), len(rows))
	}
	for i, r := range rows {
		if r.Mode != canon.Modes()[i] {
			t.Errorf("row %d mode = %s, want %s", i, r.Mode, canon.Modes()[i])
		}
		if r.Error != "" {
			t.Errorf("%s failed: %s", r.Mode, r.Error)
		}
		if r.Coverage != 1 {
			t.Errorf("%s coverage = %v", r.Mode, r.Coverage)
		}
	}

	// Without --save nothing is recorded.
	code, out, _ = runCLI(t, "runs", "orpheus")
	if code != 0 || !strings.Contains(out, "No runs recorded.") {
		t.Fatalf("expected empty history, got:\n%s", out)
	}
}

func TestCompareSaveRecordsFailures(t *testing.T) {
	env := newTestEnv(t)
	code, out, errOut := runCLI(t, "compare", env.dataset, "--save", "--target", "99", "--format", "json")
	if code != 0 {
		t.Fatalf("compare failed: %s", errOut)
	}
	var rows []compareRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parsing compare output: %v", err)
	}
	for _, r := range rows {
		if r.Error == "" {
			t.Fatalf("%s: expected error row", r.Mode)
		}
	}

	code, out, errOut = runCLI(t, "runs", "orpheus", "--format", "json")
	if code != 0 {
		t.Fatalf("runs failed: %s", errOut)
	}
	var runs []canon.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("parsing runs: %v", err)
	}
	if len(runs) != len(canon.Modes()) {
		t.Fatalf("expected %d recorded runs, got %d", len(canon.Modes()), len(runs))
	}
	modes := make(map[canon.Mode]bool)
	for _, r := range runs {
		if r.Status != canon.StatusFailed {
			t.Fatalf("run %s: status %s, want failed", r.ID, r.Status)
		}
		if r.Error != "Cannot request 99 canonical categories with only 6 plot points available." {
			t.Fatalf("run %s: unexpected error %q", r.ID, r.Error)
		}
		modes[r.Mode] = true
	}
	if len(modes) != len(canon.Modes()) {
		t.Fatalf("expected one failed run per mode, got %v", modes)
	}
}

func TestConfigCommand(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := filepath.Join(env.dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("default_mode: consensus\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "config")
	if code != 0 {
		t.Fatalf("config failed: %s", errOut)
	}
	if !strings.Contains(out, "consensus") || !strings.Contains(out, "config ("+cfgPath+")") {
		t.Fatalf("unexpected config output:\n%s", out)
	}
	if !strings.Contains(out, "env (CANON_DB)") {
		t.Fatalf("expected db path from env:\n%s", out)
	}
}

func TestGlobalDBFlagOverridesEnv(t *testing.T) {
	env := newTestEnv(t)
	custom := filepath.Join(env.dir, "custom", "history.db")
	if code, _, errOut := runCLI(t, "--db", custom, "run", env.dataset); code != 0 {
		t.Fatalf("run failed: %s", errOut)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Fatalf("expected database at %s: %v", custom, err)
	}
}
