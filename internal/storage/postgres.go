package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgMigrations mirrors the SQLite schema for Postgres.
var pgMigrations = []struct {
	Version int
	Name    string
	Stmts   []string
}{
	{1, "ingestion_schema", []string{
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
			imported_at  TIMESTAMPTZ NOT NULL,
			scraped_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS public_events (
			id           TEXT PRIMARY KEY,
			staging_id   TEXT UNIQUE REFERENCES staging_events(id) ON DELETE SET NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			start_at     TIMESTAMPTZ NOT NULL,
			end_at       TIMESTAMPTZ NOT NULL,
			partner_name TEXT NOT NULL DEFAULT '',
			location     TEXT NOT NULL DEFAULT 'See Source',
			source_url   TEXT NOT NULL DEFAULT '',
			is_public    BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			id           TEXT PRIMARY KEY,
			triggered_by TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ,
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
			acquired_at  TIMESTAMPTZ NOT NULL,
			heartbeat_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_listing  ON staging_events(source_url, event_date, title)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_status   ON staging_events(status)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_imported ON staging_events(imported_at)`,
		`CREATE INDEX IF NOT EXISTS idx_public_start     ON public_events(is_public, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started     ON ingestion_runs(started_at)`,
	}},
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range pgMigrations {
		var count int
		if err := s.pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = $1", m.Version,
		).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Stmts {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// pgClassify maps unique_violation onto ErrConflict.
func pgClassify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func pgScanStaging(row pgx.Row) (*StagingRecord, error) {
	var r StagingRecord
	var status string
	if err := row.Scan(
		&r.ID, &r.SourceKey, &r.Source, &r.Title, &r.College, &r.Date, &r.Time,
		&r.EventType, &r.Mode, &r.Description, &r.SourceURL, &r.ContentHash, &status,
		&r.ImportedAt, &r.ScrapedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func pgScanPublic(row pgx.Row) (*PublicEvent, error) {
	var e PublicEvent
	if err := row.Scan(
		&e.ID, &e.StagingID, &e.Title, &e.Description, &e.Start, &e.End,
		&e.PartnerName, &e.Location, &e.SourceURL, &e.IsPublic, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) UpsertStaging(ctx context.Context, ev RawEvent) (UpsertResult, error) {
	if err := validateRaw(ev); err != nil {
		return UpsertResult{}, err
	}
	key := ev.SourceKey()
	hash := contentHash(ev)
	now := time.Now().UTC()
	captured := ev.CapturedAt
	if captured.IsZero() {
		captured = now
	}

	var res UpsertResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id, oldHash string
		err := tx.QueryRow(ctx,
			"SELECT id, content_hash FROM staging_events WHERE source_key = $1 FOR UPDATE", key,
		).Scan(&id, &oldHash)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			res = UpsertResult{ID: newID(), Outcome: OutcomeNew}
			_, err = tx.Exec(ctx, `
				INSERT INTO staging_events (`+stagingColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
				res.ID, key, ev.Source, ev.Title, ev.College, ev.Date, ev.Time,
				ev.EventType, ev.Mode, ev.Description, ev.SourceURL, hash, string(StatusUnverified),
				captured, captured, now,
			)
			if err != nil {
				return fmt.Errorf("insert staging: %w", pgClassify(err))
			}
		case err != nil:
			return fmt.Errorf("lookup staging: %w", err)
		case oldHash == hash:
			res = UpsertResult{ID: id, Outcome: OutcomeUnchanged}
			if _, err := tx.Exec(ctx, "UPDATE staging_events SET scraped_at = $1 WHERE id = $2", captured, id); err != nil {
				return fmt.Errorf("touch staging: %w", err)
			}
		default:
			res = UpsertResult{ID: id, Outcome: OutcomeUpdated}
			_, err = tx.Exec(ctx, `
				UPDATE staging_events SET
					source = $1, title = $2, college = $3, event_date = $4, event_time = $5,
					event_type = $6, mode = $7, description = $8, source_url = $9,
					content_hash = $10, scraped_at = $11, updated_at = $12
				WHERE id = $13`,
				ev.Source, ev.Title, ev.College, ev.Date, ev.Time,
				ev.EventType, ev.Mode, ev.Description, ev.SourceURL,
				hash, captured, now, id,
			)
			if err != nil {
				return fmt.Errorf("update staging: %w", pgClassify(err))
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func (s *PostgresStore) GetStaging(ctx context.Context, id string) (*StagingRecord, error) {
	r, err := pgScanStaging(s.pool.QueryRow(ctx,
		`SELECT `+stagingColumns+` FROM staging_events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("staging record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get staging: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListStaging(ctx context.Context, q StagingQuery) ([]StagingRecord, error) {
	var limit any // LIMIT NULL is unbounded
	if q.Limit > 0 {
		limit = q.Limit
	}
	var clauses []string
	var args []any
	if q.Status != "" {
		args = append(args, string(q.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.Source != "" {
		args = append(args, q.Source)
		clauses = append(clauses, fmt.Sprintf("source = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM staging_events%s ORDER BY imported_at DESC, id LIMIT $%d OFFSET $%d`,
		stagingColumns, where, len(args)-1, len(args))
	return s.queryStaging(ctx, query, args...)
}

func (s *PostgresStore) queryStaging(ctx context.Context, query string, args ...any) ([]StagingRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query staging: %w", err)
	}
	defer rows.Close()

	records := []StagingRecord{}
	for rows.Next() {
		r, err := pgScanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) SetStagingStatus(ctx context.Context, id string, status Status) (*StagingRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE staging_events SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("staging record %s: %w", id, ErrNotFound)
	}
	return s.GetStaging(ctx, id)
}

func (s *PostgresStore) ApproveAllUnverified(ctx context.Context) ([]StagingRecord, error) {
	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx, `
		UPDATE staging_events SET status = $1, updated_at = $2
		WHERE status = $3
		RETURNING `+stagingColumns,
		string(StatusApproved), now, string(StatusUnverified))
	if err != nil {
		return nil, fmt.Errorf("approve all: %w", err)
	}
	defer rows.Close()

	records := []StagingRecord{}
	for rows.Next() {
		r, err := pgScanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ListUnpublishedApproved(ctx context.Context) ([]StagingRecord, error) {
	return s.queryStaging(ctx, `
		SELECT `+stagingColumns+` FROM staging_events s
		WHERE status = $1
		  AND NOT EXISTS (SELECT 1 FROM public_events p WHERE p.staging_id = s.id)
		ORDER BY imported_at DESC, id`, string(StatusApproved))
}

func (s *PostgresStore) UpsertPublicEvent(ctx context.Context, ev *PublicEvent) (bool, error) {
	if ev.StagingID == nil || *ev.StagingID == "" {
		return false, fmt.Errorf("public event upsert requires a staging reference")
	}
	now := time.Now().UTC()
	candidateID := newID()

	// xmax = 0 only on a freshly inserted row.
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO public_events (`+publicColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		ON CONFLICT (staging_id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			partner_name = EXCLUDED.partner_name, location = EXCLUDED.location,
			source_url = EXCLUDED.source_url, is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, (xmax = 0)`,
		candidateID, *ev.StagingID, ev.Title, ev.Description, ev.Start, ev.End,
		ev.PartnerName, ev.Location, ev.SourceURL, ev.IsPublic, now,
	).Scan(&ev.ID, &ev.CreatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert public event: %w", pgClassify(err))
	}
	ev.UpdatedAt = now
	return inserted, nil
}

func (s *PostgresStore) GetPublicByStaging(ctx context.Context, stagingID string) (*PublicEvent, error) {
	e, err := pgScanPublic(s.pool.QueryRow(ctx,
		`SELECT `+publicColumns+` FROM public_events WHERE staging_id = $1`, stagingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("public event for %s: %w", stagingID, ErrNotFound)
		}
		return nil, fmt.Errorf("get public event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListPublicEvents(ctx context.Context) ([]PublicEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+publicColumns+` FROM public_events WHERE is_public ORDER BY start_at ASC, id`)
	if err != nil {
		return nil, fmt.Errorf("query public events: %w", err)
	}
	defer rows.Close()

	events := []PublicEvent{}
	for rows.Next() {
		e, err := pgScanPublic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan public event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) BeginRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now()
	}
	run.Status = RunRunning
	run.EndTime = nil
	_, err := s.pool.Exec(ctx,
		"INSERT INTO ingestion_runs (id, triggered_by, status, started_at) VALUES ($1, $2, $3, $4)",
		run.ID, run.TriggeredBy, string(RunRunning), run.StartTime.UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", pgClassify(err))
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, stats map[string]SourceStats, at time.Time) error {
	return s.finishRun(ctx, id, RunCompleted, stats, "", at)
}

func (s *PostgresStore) FailRun(ctx context.Context, id string, stats map[string]SourceStats, msg string, at time.Time) error {
	return s.finishRun(ctx, id, RunFailed, stats, msg, at)
}

func (s *PostgresStore) finishRun(ctx context.Context, id string, status RunStatus, stats map[string]SourceStats, msg string, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE ingestion_runs SET status = $1, finished_at = $2, error = $3 WHERE id = $4 AND status = $5",
			string(status), at.UTC(), msg, id, string(RunRunning))
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var count int
			if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM ingestion_runs WHERE id = $1", id).Scan(&count); err != nil {
				return fmt.Errorf("lookup run: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("run %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("run %s: %w", id, ErrRunFinished)
		}

		if len(stats) == 0 {
			return nil
		}
		b := &pgx.Batch{}
		for source, st := range stats {
			b.Queue(`
				INSERT INTO run_source_stats (run_id, source, new_count, updated_count, unchanged_count, failed_count)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				id, source, st.New, st.Updated, st.Unchanged, st.Failed)
		}
		br := tx.SendBatch(ctx, b)
		for range stats {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert run stats: %w", err)
			}
		}
		return br.Close()
	})
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, triggered_by, status, started_at, finished_at, error
		FROM ingestion_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.TriggeredBy, &status, &r.StartTime, &r.EndTime, &r.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Status = RunStatus(status)
	if err := s.loadRunStats(ctx, []*Run{&r}); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) loadRunStats(ctx context.Context, runs []*Run) error {
	if len(runs) == 0 {
		return nil
	}
	ids := make([]string, len(runs))
	byID := make(map[string]*Run, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
		r.Stats = map[string]SourceStats{}
		byID[r.ID] = r
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, source, new_count, updated_count, unchanged_count, failed_count
		FROM run_source_stats WHERE run_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var runID, source string
		var st SourceStats
		if err := rows.Scan(&runID, &source, &st.New, &st.Updated, &st.Unchanged, &st.Failed); err != nil {
			return fmt.Errorf("scan run stats: %w", err)
		}
		if r, ok := byID[runID]; ok {
			r.Stats[source] = st
		}
	}
	return rows.Err()
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, triggered_by, status, started_at, finished_at, error
		FROM ingestion_runs ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs := []Run{}
	for rows.Next() {
		var r Run
		var status string
		if err := rows.Scan(&r.ID, &r.TriggeredBy, &status, &r.StartTime, &r.EndTime, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = RunStatus(status)
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*Run, len(runs))
	for i := range runs {
		ptrs[i] = &runs[i]
	}
	if err := s.loadRunStats(ctx, ptrs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *PostgresStore) ReconcileStaleRuns(ctx context.Context, cutoff time.Time, msg string, at time.Time) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ingestion_runs SET status = $1, finished_at = $2, error = $3
			WHERE status = $4 AND started_at < $5
			  AND id NOT IN (SELECT run_id FROM run_lease WHERE heartbeat_at >= $5)`,
			string(RunFailed), at.UTC(), msg, string(RunRunning), cutoff.UTC())
		if err != nil {
			return fmt.Errorf("reconcile runs: %w", err)
		}
		n = tag.RowsAffected()
		if _, err := tx.Exec(ctx, "DELETE FROM run_lease WHERE heartbeat_at < $1", cutoff.UTC()); err != nil {
			return fmt.Errorf("drop stale lease: %w", err)
		}
		return nil
	})
	return n, err
}

func (s *PostgresStore) AcquireLease(ctx context.Context, lease Lease, staleBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO run_lease (id, run_id, holder, acquired_at, heartbeat_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id, holder = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at, heartbeat_at = EXCLUDED.heartbeat_at
		WHERE run_lease.heartbeat_at < $5`,
		lease.RunID, lease.Holder, lease.AcquiredAt.UTC(), lease.HeartbeatAt.UTC(), staleBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) HeartbeatLease(ctx context.Context, runID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, "UPDATE run_lease SET heartbeat_at = $1 WHERE run_id = $2", at.UTC(), runID)
	if err != nil {
		return fmt.Errorf("heartbeat lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lease for run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, runID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM run_lease WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (s *PostgresStore) CurrentLease(ctx context.Context) (*Lease, error) {
	var l Lease
	err := s.pool.QueryRow(ctx,
		"SELECT run_id, holder, acquired_at, heartbeat_at FROM run_lease WHERE id = 1",
	).Scan(&l.RunID, &l.Holder, &l.AcquiredAt, &l.HeartbeatAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Staging: map[Status]int64{
		StatusUnverified: 0,
		StatusApproved:   0,
		StatusRejected:   0,
	}}

	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM staging_events GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count staging: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Staging[Status(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM public_events WHERE is_public").Scan(&stats.PublicEvents); err != nil {
		return nil, fmt.Errorf("count public events: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM staging_events s
		WHERE status = $1 AND NOT EXISTS (SELECT 1 FROM public_events p WHERE p.staging_id = s.id)`,
		string(StatusApproved),
	).Scan(&stats.Unpublished); err != nil {
		return nil, fmt.Errorf("count unpublished: %w", err)
	}

	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		stats.LastRun = &runs[0]
	}
	return stats, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
