package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hurttlocker/canon/internal/canon"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunStats summarizes stored history.
type RunStats struct {
	Runs          int64            `json:"runs"`
	Failed        int64            `json:"failed"`
	Myths         int64            `json:"myths"`
	ByMode        map[string]int64 `json:"by_mode"`
	SchemaVersion string           `json:"schema_version"`
}

// Save inserts run. Run ids are unique; saving the same id twice fails.
func (s *RunStore) Save(ctx context.Context, run *canon.Run) error {
	if run == nil {
		return fmt.Errorf("saving run: nil run")
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	assignments := run.Assignments
	if assignments == nil {
		assignments = []canon.CanonicalAssignment{}
	}
	assignmentsJSON, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("encoding assignments: %w", err)
	}
	prevalence, err := marshalMap(run.Prevalence)
	if err != nil {
		return fmt.Errorf("encoding prevalence: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	diagnostics, err := marshalMap(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("encoding diagnostics: %w", err)
	}

	status := run.Status
	if status == "" {
		status = canon.StatusCompleted
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canonical_runs
			(id, myth_id, mode, status, error, params, assignments, prevalence, metrics, diagnostics, input_digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.MythID, string(run.Mode), status, run.Error,
		string(params), string(assignmentsJSON), prevalence, string(metrics), diagnostics,
		run.InputDigest, createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// List returns mythID's runs, most recent first. limit <= 0 returns all.
func (s *RunStore) List(ctx context.Context, mythID string, limit int) ([]*canon.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM canonical_runs
		 WHERE myth_id = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, mythID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*canon.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with id, or nil when none exists.
func (s *RunStore) Get(ctx context.Context, id string) (*canon.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM canonical_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return run, nil
}

// Stats returns aggregate counts over all stored runs.
func (s *RunStore) Stats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{ByMode: make(map[string]int64)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT myth_id)
		 FROM canonical_runs`, canon.StatusFailed,
	).Scan(&stats.Runs, &stats.Failed, &stats.Myths)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT mode, COUNT(*) FROM canonical_runs GROUP BY mode`)
	if err != nil {
		return nil, fmt.Errorf("counting runs by mode: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var n int64
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("scanning mode count: %w", err)
		}
		stats.ByMode[mode] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.SchemaVersion, err = s.metaValue("schema_version")
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	return stats, nil
}

const runColumns = `id, myth_id, mode, status, error, params, assignments, prevalence, metrics, diagnostics, input_digest, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*canon.Run, error) {
	var (
		run                                                       canon.Run
		mode, params, assignments, prevalence, metrics, diag, at string
	)
	if err := row.Scan(&run.ID, &run.MythID, &mode, &run.Status, &run.Error,
		&params, &assignments, &prevalence, &metrics, &diag, &run.InputDigest, &at); err != nil {
		return nil, err
	}
	run.Mode = canon.Mode(mode)

	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(assignments), &run.Assignments); err != nil {
		return nil, fmt.Errorf("decoding assignments for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(prevalence), &run.Prevalence); err != nil {
		return nil, fmt.Errorf("decoding prevalence for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(metrics), &run.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(diag), &run.Diagnostics); err != nil {
		return nil, fmt.Errorf("decoding diagnostics for run %s: %w", run.ID, err)
	}
	if len(run.Diagnostics) == 0 {
		run.Diagnostics = nil
	}

	createdAt, err := time.Parse(timeLayout, at)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for run %s: %w", run.ID, err)
	}
	run.CreatedAt = createdAt
	return &run, nil
}

func marshalMap[V any](m map[string]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Recent returns the most recent runs across every myth.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]*canon.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM canonical_runs
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*canon.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent runs: %w", err)
	}
	return runs, nil
}
