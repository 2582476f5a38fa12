package storage

import "database/sql"

// migrateV001 creates the ingestion schema: staging, public events, run
// history and the run lease. Every statement uses IF NOT EXISTS for
// idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS staging_events (
			id           TEXT PRIMARY KEY,
			source_key   TEXT NOT NULL UNIQUE,
			source       TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			college      TEXT NOT NULL DEFAULT '',
			event_date   TEXT NOT NULL DEFAULT '',
			event_time   TEXT NOT NULL DEFAULT '',
			event_type   TEXT NOT NULL DEFAULT '',
			mode         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			source_url   TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'unverified'
			             CHECK (status IN ('unverified', 'approved', 'rejected')),
			imported_at  DATETIME NOT NULL,
			scraped_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS public_events (
			id           TEXT PRIMARY KEY,
			staging_id   TEXT UNIQUE REFERENCES staging_events(id) ON DELETE SET NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			start_at     DATETIME NOT NULL,
			end_at       DATETIME NOT NULL,
			partner_name TEXT NOT NULL DEFAULT '',
			location     TEXT NOT NULL DEFAULT 'See Source',
			source_url   TEXT NOT NULL DEFAULT '',
			is_public    BOOLEAN NOT NULL DEFAULT 1,
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			id           TEXT PRIMARY KEY,
			triggered_by TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
			started_at   DATETIME NOT NULL,
			finished_at  DATETIME,
			error        TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS run_source_stats (
			run_id          TEXT NOT NULL REFERENCES ingestion_runs(id) ON DELETE CASCADE,
			source          TEXT NOT NULL,
			new_count       INTEGER NOT NULL DEFAULT 0,
			updated_count   INTEGER NOT NULL DEFAULT 0,
			unchanged_count INTEGER NOT NULL DEFAULT 0,
			failed_count    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, source)
		)`,

		`CREATE TABLE IF NOT EXISTS run_lease (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			run_id       TEXT NOT NULL,
			holder       TEXT NOT NULL DEFAULT '',
			acquired_at  DATETIME NOT NULL,
			heartbeat_at DATETIME NOT NULL
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_staging_listing         ON staging_events(source_url, event_date, title)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_status         ON staging_events(status)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_imported       ON staging_events(imported_at)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_source         ON staging_events(source)`,
		`CREATE INDEX IF NOT EXISTS idx_public_start           ON public_events(is_public, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started           ON ingestion_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status            ON ingestion_runs(status)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
