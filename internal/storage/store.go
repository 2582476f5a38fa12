package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simu18/CUNYServe/internal/config"
)

// Store defines the persistence operations of the ingestion pipeline.
type Store interface {
	// UpsertStaging inserts or refreshes a candidate keyed by its source key.
	// It never modifies moderation status.
	UpsertStaging(ctx context.Context, ev RawEvent) (UpsertResult, error)
	GetStaging(ctx context.Context, id string) (*StagingRecord, error)
	ListStaging(ctx context.Context, q StagingQuery) ([]StagingRecord, error)
	SetStagingStatus(ctx context.Context, id string, status Status) (*StagingRecord, error)
	// ApproveAllUnverified flips every unverified record to approved in one
	// statement and returns the affected records.
	ApproveAllUnverified(ctx context.Context) ([]StagingRecord, error)
	ListUnpublishedApproved(ctx context.Context) ([]StagingRecord, error)

	// UpsertPublicEvent writes ev keyed by ev.StagingID and reports whether
	// a new row was created. ev.ID and ev.CreatedAt are filled in.
	UpsertPublicEvent(ctx context.Context, ev *PublicEvent) (bool, error)
	GetPublicByStaging(ctx context.Context, stagingID string) (*PublicEvent, error)
	ListPublicEvents(ctx context.Context) ([]PublicEvent, error)

	BeginRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, stats map[string]SourceStats, at time.Time) error
	FailRun(ctx context.Context, id string, stats map[string]SourceStats, msg string, at time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	// ReconcileStaleRuns fails running rows started before cutoff whose lease
	// has not been refreshed since cutoff, and drops a lease that old.
	ReconcileStaleRuns(ctx context.Context, cutoff time.Time, msg string, at time.Time) (int64, error)

	// AcquireLease takes the single run lease unless another holder
	// refreshed it at or after staleBefore.
	AcquireLease(ctx context.Context, lease Lease, staleBefore time.Time) (bool, error)
	HeartbeatLease(ctx context.Context, runID string, at time.Time) error
	ReleaseLease(ctx context.Context, runID string) error
	CurrentLease(ctx context.Context) (*Lease, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		tsLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func newID() string {
	return uuid.NewString()
}

// contentHash fingerprints the content fields of a candidate so an
// unchanged re-scrape can be told apart from an edit.
func contentHash(ev RawEvent) string {
	h := sha256.New()
	for _, f := range []string{
		ev.Source, ev.Title, ev.College, ev.Date, ev.Time,
		ev.EventType, ev.Mode, ev.Description, ev.SourceURL,
	} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func validateRaw(ev RawEvent) error {
	if ev.SourceKey() == "" {
		return fmt.Errorf("%w: %q has no source key", ErrInvalid, ev.Title)
	}
	if ev.Source == "" {
		return fmt.Errorf("%w: %q has no source", ErrInvalid, ev.Title)
	}
	return nil
}

// Open connects to the configured backend and brings its schema up to date.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path, err := config.ExpandPath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return OpenSQLite(path, cfg.SQLiteJournalMode)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}
