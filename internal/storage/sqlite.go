package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const stagingColumns = `id, source_key, source, title, college, event_date, event_time,
	event_type, mode, description, source_url, content_hash, status,
	imported_at, scraped_at, updated_at`

const publicColumns = `id, staging_id, title, description, start_at, end_at,
	partner_name, location, source_url, is_public, created_at, updated_at`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	owned bool

	// Prepared statements
	getStaging   *sql.Stmt
	getPublic    *sql.Stmt
	getRun       *sql.Stmt
	getRunStats  *sql.Stmt
	heartbeat    *sql.Stmt
	releaseLease *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// OpenSQLite opens (creating if needed) the database at path, migrates it
// and returns a store that owns the connection.
func OpenSQLite(path, journalMode string) (*SQLiteStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if err := NewMigrationRunner(db).WithJournalMode(journalMode).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}
	s.owned = true
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStaging, err = s.db.Prepare(`SELECT ` + stagingColumns + ` FROM staging_events WHERE id = ?`)
	if err != nil {
		return err
	}

	s.getPublic, err = s.db.Prepare(`SELECT ` + publicColumns + ` FROM public_events WHERE staging_id = ?`)
	if err != nil {
		return err
	}

	s.getRun, err = s.db.Prepare(`
		SELECT id, triggered_by, status, started_at, finished_at, error
		FROM ingestion_runs WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.getRunStats, err = s.db.Prepare(`
		SELECT source, new_count, updated_count, unchanged_count, failed_count
		FROM run_source_stats WHERE run_id = ?
	`)
	if err != nil {
		return err
	}

	s.heartbeat, err = s.db.Prepare(`UPDATE run_lease SET heartbeat_at = ? WHERE run_id = ?`)
	if err != nil {
		return err
	}

	s.releaseLease, err = s.db.Prepare(`DELETE FROM run_lease WHERE run_id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// classify maps driver constraint errors onto ErrConflict.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStaging(row scanner) (*StagingRecord, error) {
	var r StagingRecord
	var status, imported, scraped, updated string
	if err := row.Scan(
		&r.ID, &r.SourceKey, &r.Source, &r.Title, &r.College, &r.Date, &r.Time,
		&r.EventType, &r.Mode, &r.Description, &r.SourceURL, &r.ContentHash, &status,
		&imported, &scraped, &updated,
	); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.ImportedAt, _ = parseTimestamp(imported)
	r.ScrapedAt, _ = parseTimestamp(scraped)
	r.UpdatedAt, _ = parseTimestamp(updated)
	return &r, nil
}

func scanPublic(row scanner) (*PublicEvent, error) {
	var e PublicEvent
	var stagingID sql.NullString
	var start, end, created, updated string
	if err := row.Scan(
		&e.ID, &stagingID, &e.Title, &e.Description, &start, &end,
		&e.PartnerName, &e.Location, &e.SourceURL, &e.IsPublic, &created, &updated,
	); err != nil {
		return nil, err
	}
	if stagingID.Valid {
		id := stagingID.String
		e.StagingID = &id
	}
	e.Start, _ = parseTimestamp(start)
	e.End, _ = parseTimestamp(end)
	e.CreatedAt, _ = parseTimestamp(created)
	e.UpdatedAt, _ = parseTimestamp(updated)
	return &e, nil
}

// UpsertStaging inserts a new candidate or refreshes an existing one.
// Unchanged content only bumps scraped_at.
func (s *SQLiteStore) UpsertStaging(ctx context.Context, ev RawEvent) (UpsertResult, error) {
	if err := validateRaw(ev); err != nil {
		return UpsertResult{}, err
	}
	key := ev.SourceKey()
	hash := contentHash(ev)
	now := time.Now()
	captured := ev.CapturedAt
	if captured.IsZero() {
		captured = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id, oldHash string
	err = tx.QueryRowContext(ctx,
		"SELECT id, content_hash FROM staging_events WHERE source_key = ?", key,
	).Scan(&id, &oldHash)

	var res UpsertResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res = UpsertResult{ID: newID(), Outcome: OutcomeNew}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staging_events (`+stagingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, key, ev.Source, ev.Title, ev.College, ev.Date, ev.Time,
			ev.EventType, ev.Mode, ev.Description, ev.SourceURL, hash, string(StatusUnverified),
			formatTS(captured), formatTS(captured), formatTS(now),
		)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("insert staging: %w", classify(err))
		}
	case err != nil:
		return UpsertResult{}, fmt.Errorf("lookup staging: %w", err)
	case oldHash == hash:
		res = UpsertResult{ID: id, Outcome: OutcomeUnchanged}
		if _, err := tx.ExecContext(ctx,
			"UPDATE staging_events SET scraped_at = ? WHERE id = ?", formatTS(captured), id,
		); err != nil {
			return UpsertResult{}, fmt.Errorf("touch staging: %w", err)
		}
	default:
		res = UpsertResult{ID: id, Outcome: OutcomeUpdated}
		_, err = tx.ExecContext(ctx, `
			UPDATE staging_events SET
				source = ?, title = ?, college = ?, event_date = ?, event_time = ?,
				event_type = ?, mode = ?, description = ?, source_url = ?,
				content_hash = ?, scraped_at = ?, updated_at = ?
			WHERE id = ?`,
			ev.Source, ev.Title, ev.College, ev.Date, ev.Time,
			ev.EventType, ev.Mode, ev.Description, ev.SourceURL,
			hash, formatTS(captured), formatTS(now), id,
		)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("update staging: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit staging: %w", err)
	}
	return res, nil
}

// GetStaging retrieves a single staging record by ID.
func (s *SQLiteStore) GetStaging(ctx context.Context, id string) (*StagingRecord, error) {
	r, err := scanStaging(s.getStaging.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("staging record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get staging: %w", err)
	}
	return r, nil
}

// ListStaging returns staging records newest-imported first.
func (s *SQLiteStore) ListStaging(ctx context.Context, q StagingQuery) ([]StagingRecord, error) {
	if q.Limit <= 0 {
		q.Limit = -1 // SQLite: no limit
	}

	var clauses []string
	var args []interface{}
	if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, q.Source)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	query := `SELECT ` + stagingColumns + ` FROM staging_events` + where +
		` ORDER BY imported_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	return s.queryStaging(ctx, query, args...)
}

func (s *SQLiteStore) queryStaging(ctx context.Context, query string, args ...interface{}) ([]StagingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query staging: %w", err)
	}
	defer rows.Close()

	records := []StagingRecord{}
	for rows.Next() {
		r, err := scanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// SetStagingStatus writes a moderation status and returns the updated record.
func (s *SQLiteStore) SetStagingStatus(ctx context.Context, id string, status Status) (*StagingRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE staging_events SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTS(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("staging record %s: %w", id, ErrNotFound)
	}
	return s.GetStaging(ctx, id)
}

// ApproveAllUnverified approves every unverified record in one transaction.
func (s *SQLiteStore) ApproveAllUnverified(ctx context.Context) ([]StagingRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT `+stagingColumns+` FROM staging_events WHERE status = ? ORDER BY imported_at`,
		string(StatusUnverified),
	)
	if err != nil {
		return nil, fmt.Errorf("select unverified: %w", err)
	}
	records := []StagingRecord{}
	for rows.Next() {
		r, err := scanStaging(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan staging: %w", err)
		}
		records = append(records, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE staging_events SET status = ?, updated_at = ? WHERE status = ?",
		string(StatusApproved), formatTS(now), string(StatusUnverified),
	); err != nil {
		return nil, fmt.Errorf("approve all: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve all: %w", err)
	}

	for i := range records {
		records[i].Status = StatusApproved
		records[i].UpdatedAt = now.UTC()
	}
	return records, nil
}

// ListUnpublishedApproved returns approved records that have no public event.
func (s *SQLiteStore) ListUnpublishedApproved(ctx context.Context) ([]StagingRecord, error) {
	return s.queryStaging(ctx, `
		SELECT `+stagingColumns+` FROM staging_events
		WHERE status = ?
		  AND id NOT IN (SELECT staging_id FROM public_events WHERE staging_id IS NOT NULL)
		ORDER BY imported_at DESC, id`,
		string(StatusApproved),
	)
}

// UpsertPublicEvent writes a public event keyed by its staging back-reference.
func (s *SQLiteStore) UpsertPublicEvent(ctx context.Context, ev *PublicEvent) (bool, error) {
	if ev.StagingID == nil || *ev.StagingID == "" {
		return false, fmt.Errorf("public event upsert requires a staging reference")
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id, created string
	err = tx.QueryRowContext(ctx,
		"SELECT id, created_at FROM public_events WHERE staging_id = ?", *ev.StagingID,
	).Scan(&id, &created)

	isNew := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		isNew = true
		ev.ID = newID()
		ev.CreatedAt = now.UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO public_events (`+publicColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, *ev.StagingID, ev.Title, ev.Description, formatTS(ev.Start), formatTS(ev.End),
			ev.PartnerName, ev.Location, ev.SourceURL, ev.IsPublic, formatTS(now), formatTS(now),
		)
		if err != nil {
			return false, fmt.Errorf("insert public event: %w", classify(err))
		}
	case err != nil:
		return false, fmt.Errorf("lookup public event: %w", err)
	default:
		ev.ID = id
		ev.CreatedAt, _ = parseTimestamp(created)
		_, err = tx.ExecContext(ctx, `
			UPDATE public_events SET
				title = ?, description = ?, start_at = ?, end_at = ?,
				partner_name = ?, location = ?, source_url = ?, is_public = ?, updated_at = ?
			WHERE id = ?`,
			ev.Title, ev.Description, formatTS(ev.Start), formatTS(ev.End),
			ev.PartnerName, ev.Location, ev.SourceURL, ev.IsPublic, formatTS(now), id,
		)
		if err != nil {
			return false, fmt.Errorf("update public event: %w", classify(err))
		}
	}
	ev.UpdatedAt = now.UTC()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit public event: %w", err)
	}
	return isNew, nil
}

// GetPublicByStaging returns the public event linked to a staging record.
func (s *SQLiteStore) GetPublicByStaging(ctx context.Context, stagingID string) (*PublicEvent, error) {
	e, err := scanPublic(s.getPublic.QueryRowContext(ctx, stagingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("public event for %s: %w", stagingID, ErrNotFound)
		}
		return nil, fmt.Errorf("get public event: %w", err)
	}
	return e, nil
}

// ListPublicEvents returns publicly visible events sorted by start time.
func (s *SQLiteStore) ListPublicEvents(ctx context.Context) ([]PublicEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+publicColumns+` FROM public_events WHERE is_public = 1 ORDER BY start_at ASC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query public events: %w", err)
	}
	defer rows.Close()

	events := []PublicEvent{}
	for rows.Next() {
		e, err := scanPublic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan public event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// BeginRun records a run as running. ID and StartTime are filled if empty.
func (s *SQLiteStore) BeginRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now()
	}
	run.Status = RunRunning
	run.EndTime = nil

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ingestion_runs (id, triggered_by, status, started_at) VALUES (?, ?, ?, ?)",
		run.ID, run.TriggeredBy, string(RunRunning), formatTS(run.StartTime),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", classify(err))
	}
	return nil
}

// CompleteRun marks a running run completed and stores its per-source stats.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, stats map[string]SourceStats, at time.Time) error {
	return s.finishRun(ctx, id, RunCompleted, stats, "", at)
}

// FailRun marks a running run failed with an error message.
func (s *SQLiteStore) FailRun(ctx context.Context, id string, stats map[string]SourceStats, msg string, at time.Time) error {
	return s.finishRun(ctx, id, RunFailed, stats, msg, at)
}

func (s *SQLiteStore) finishRun(ctx context.Context, id string, status RunStatus, stats map[string]SourceStats, msg string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE ingestion_runs SET status = ?, finished_at = ?, error = ? WHERE id = ? AND status = ?",
		string(status), formatTS(at), msg, id, string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingestion_runs WHERE id = ?", id).Scan(&count); err != nil {
			return fmt.Errorf("lookup run: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("run %s: %w", id, ErrRunFinished)
	}

	for source, st := range stats {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_source_stats (run_id, source, new_count, updated_count, unchanged_count, failed_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, source, st.New, st.Updated, st.Unchanged, st.Failed,
		); err != nil {
			return fmt.Errorf("insert run stats: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run with its per-source stats.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.getRun.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := s.loadRunStats(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var status, started string
	var finished sql.NullString
	if err := row.Scan(&r.ID, &r.TriggeredBy, &status, &started, &finished, &r.Error); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.StartTime, _ = parseTimestamp(started)
	if finished.Valid {
		if t, err := parseTimestamp(finished.String); err == nil {
			r.EndTime = &t
		}
	}
	return &r, nil
}

func (s *SQLiteStore) loadRunStats(ctx context.Context, run *Run) error {
	rows, err := s.getRunStats.QueryContext(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	run.Stats = map[string]SourceStats{}
	for rows.Next() {
		var source string
		var st SourceStats
		if err := rows.Scan(&source, &st.New, &st.Updated, &st.Unchanged, &st.Failed); err != nil {
			return fmt.Errorf("scan run stats: %w", err)
		}
		run.Stats[source] = st
	}
	return rows.Err()
}

// RecentRuns returns the most recent runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, triggered_by, status, started_at, finished_at, error
		FROM ingestion_runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Stats are loaded after the cursor is closed; the pool holds one connection.
	for i := range runs {
		if err := s.loadRunStats(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// ReconcileStaleRuns fails abandoned running rows and drops a dead lease.
func (s *SQLiteStore) ReconcileStaleRuns(ctx context.Context, cutoff time.Time, msg string, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE ingestion_runs SET status = ?, finished_at = ?, error = ?
		WHERE status = ? AND started_at < ?
		  AND id NOT IN (SELECT run_id FROM run_lease WHERE heartbeat_at >= ?)`,
		string(RunFailed), formatTS(at), msg, string(RunRunning), formatTS(cutoff), formatTS(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reconcile runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_lease WHERE heartbeat_at < ?", formatTS(cutoff)); err != nil {
		return 0, fmt.Errorf("drop stale lease: %w", err)
	}

	return n, tx.Commit()
}

// AcquireLease takes the run lease when it is free or stale.
func (s *SQLiteStore) AcquireLease(ctx context.Context, lease Lease, staleBefore time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var hb string
	err = tx.QueryRowContext(ctx, "SELECT heartbeat_at FROM run_lease WHERE id = 1").Scan(&hb)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO run_lease (id, run_id, holder, acquired_at, heartbeat_at) VALUES (1, ?, ?, ?, ?)",
			lease.RunID, lease.Holder, formatTS(lease.AcquiredAt), formatTS(lease.HeartbeatAt),
		)
	case err != nil:
		return false, fmt.Errorf("read lease: %w", err)
	default:
		last, perr := parseTimestamp(hb)
		if perr == nil && !last.Before(staleBefore) {
			return false, nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE run_lease SET run_id = ?, holder = ?, acquired_at = ?, heartbeat_at = ? WHERE id = 1",
			lease.RunID, lease.Holder, formatTS(lease.AcquiredAt), formatTS(lease.HeartbeatAt),
		)
	}
	if err != nil {
		if errors.Is(classify(err), ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("write lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(classify(err), ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("commit lease: %w", err)
	}
	return true, nil
}

// HeartbeatLease refreshes the lease held by runID.
func (s *SQLiteStore) HeartbeatLease(ctx context.Context, runID string, at time.Time) error {
	res, err := s.heartbeat.ExecContext(ctx, formatTS(at), runID)
	if err != nil {
		return fmt.Errorf("heartbeat lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lease for run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// ReleaseLease drops the lease if runID still holds it.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, runID string) error {
	if _, err := s.releaseLease.ExecContext(ctx, runID); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// CurrentLease returns the lease row, or nil when no run holds it.
func (s *SQLiteStore) CurrentLease(ctx context.Context) (*Lease, error) {
	var l Lease
	var acquired, hb string
	err := s.db.QueryRowContext(ctx,
		"SELECT run_id, holder, acquired_at, heartbeat_at FROM run_lease WHERE id = 1",
	).Scan(&l.RunID, &l.Holder, &acquired, &hb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	l.AcquiredAt, _ = parseTimestamp(acquired)
	l.HeartbeatAt, _ = parseTimestamp(hb)
	return &l, nil
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Staging: map[Status]int64{
		StatusUnverified: 0,
		StatusApproved:   0,
		StatusRejected:   0,
	}}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM staging_events GROUP BY status")
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

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM public_events WHERE is_public = 1").Scan(&stats.PublicEvents); err != nil {
		return nil, fmt.Errorf("count public events: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staging_events
		WHERE status = ?
		  AND id NOT IN (SELECT staging_id FROM public_events WHERE staging_id IS NOT NULL)`,
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

// Close releases all prepared statements, and the database when the store
// opened it itself.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.getStaging, s.getPublic, s.getRun,
		s.getRunStats, s.heartbeat, s.releaseLease,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for diagnostics such as file size.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
