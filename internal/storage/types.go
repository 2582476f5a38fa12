package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record addressed by ID does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	// other than the key the write was addressed by.
	ErrConflict = errors.New("uniqueness conflict")
	// ErrRunFinished is returned when a terminal write targets a run that
	// already completed or failed.
	ErrRunFinished = errors.New("run already finished")
	// ErrInvalid is returned when a candidate lacks its key or source.
	ErrInvalid = errors.New("invalid candidate")
)

// Status is the moderation state of a staging record.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

// Valid reports whether s is one of the known moderation states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnverified, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// RawEvent is one candidate produced by a source adapter. It is never
// persisted on its own; it is merged into a StagingRecord.
type RawEvent struct {
	Source      string
	Title       string
	College     string
	Date        string
	Time        string
	EventType   string
	Mode        string
	Description string
	SourceURL   string
	// Key overrides SourceURL as the dedup key (recurring occurrences
	// share a URL and are told apart by date).
	Key        string
	CapturedAt time.Time
}

// SourceKey returns the natural unique key for the candidate.
func (e RawEvent) SourceKey() string {
	if e.Key != "" {
		return e.Key
	}
	return e.SourceURL
}

// StagingRecord is an ingested candidate awaiting or past moderation.
type StagingRecord struct {
	ID          string    `json:"id"`
	SourceKey   string    `json:"sourceKey"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	College     string    `json:"college"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	EventType   string    `json:"eventType"`
	Mode        string    `json:"mode"`
	Description string    `json:"description"`
	SourceURL   string    `json:"sourceUrl"`
	ContentHash string    `json:"-"`
	Status      Status    `json:"status"`
	ImportedAt  time.Time `json:"importedAt"`
	ScrapedAt   time.Time `json:"scrapedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PublicEvent is a moderated event visible to the public listing.
type PublicEvent struct {
	ID          string    `json:"id"`
	StagingID   *string   `json:"scrapedEventId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	PartnerName string    `json:"partnerName"`
	Location    string    `json:"location"`
	SourceURL   string    `json:"sourceUrl"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpsertOutcome classifies what an ingestion upsert did to the staging store.
type UpsertOutcome int

const (
	OutcomeNew UpsertOutcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// UpsertResult is returned by UpsertStaging.
type UpsertResult struct {
	ID      string
	Outcome UpsertOutcome
}

// StagingQuery defines filters for listing staging records.
type StagingQuery struct {
	Status Status
	Source string
	Limit  int // zero or negative returns every match
	Offset int
}

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SourceStats counts what one source contributed to a run.
type SourceStats struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Run is one ingestion run history entry.
type Run struct {
	ID          string                 `json:"id"`
	TriggeredBy string                 `json:"triggeredBy"`
	Status      RunStatus              `json:"status"`
	StartTime   time.Time              `json:"startTime"`
	EndTime     *time.Time             `json:"endTime"`
	Stats       map[string]SourceStats `json:"stats"`
	Error       string                 `json:"error,omitempty"`
}

// Lease is the single current-run lock row.
type Lease struct {
	RunID       string
	Holder      string
	AcquiredAt  time.Time
	HeartbeatAt time.Time
}

// Stats holds aggregate counts for the status command.
type Stats struct {
	Staging      map[Status]int64
	PublicEvents int64
	Unpublished  int64
	LastRun      *Run
}
