package storage

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner_FreshDB(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.Run())

	expectedTables := []string{
		"staging_events",
		"public_events",
		"ingestion_runs",
		"run_source_stats",
		"run_lease",
		"schema_migrations",
	}
	for _, table := range expectedTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrationRunner_IndexesCreated(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	expectedIndexes := []string{
		"idx_staging_listing",
		"idx_staging_status",
		"idx_staging_imported",
		"idx_staging_source",
		"idx_public_start",
		"idx_runs_started",
		"idx_runs_status",
	}
	for _, idx := range expectedIndexes {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())
	require.NoError(t, NewMigrationRunner(db).Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrationRunner_RejectsUnknownJournalMode(t *testing.T) {
	db := openTestDB(t)
	err := NewMigrationRunner(db).WithJournalMode("wal; DROP TABLE x").Run()
	assert.Error(t, err)
}

func TestMigrationRunner_StatusCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	_, err := db.Exec(`INSERT INTO staging_events
		(id, source_key, source, source_url, content_hash, status, imported_at, scraped_at, updated_at)
		VALUES ('a', 'k', 's', 'u', 'h', 'published', 'x', 'x', 'x')`)
	assert.Error(t, err)
}
