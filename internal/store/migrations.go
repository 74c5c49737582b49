package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// schemaVersion is bumped whenever a migration step is appended.
const schemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *RunStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: input digest column. Databases created by the first
	// schema lack it.
	if err := s.migrateInputDigestColumn(); err != nil {
		return fmt.Errorf("migrating input_digest column: %w", err)
	}

	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion,
	); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

func (s *RunStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS canonical_runs (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT UNIQUE NOT NULL,
			myth_id      TEXT NOT NULL,
			mode         TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'completed',
			error        TEXT NOT NULL DEFAULT '',
			params       TEXT NOT NULL DEFAULT '{}',
			assignments  TEXT NOT NULL DEFAULT '[]',
			prevalence   TEXT NOT NULL DEFAULT '{}',
			metrics      TEXT NOT NULL DEFAULT '{}',
			diagnostics  TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_canonical_runs_myth_created
			ON canonical_runs(myth_id, created_at DESC, seq DESC)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap transaction: %w", err)
	}
	return nil
}

func (s *RunStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *RunStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *RunStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateInputDigestColumn adds input_digest to canonical_runs if missing.
func (s *RunStore) migrateInputDigestColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('canonical_runs') WHERE name='input_digest'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for input_digest column: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec("ALTER TABLE canonical_runs ADD COLUMN input_digest TEXT NOT NULL DEFAULT ''")
	if err != nil && !isDuplicateColumnError(err) {
		return fmt.Errorf("adding input_digest column: %w", err)
	}
	return nil
}

// metaValue returns a meta entry, or "" when absent.
func (s *RunStore) metaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
