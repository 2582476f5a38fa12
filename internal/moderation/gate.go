// Package moderation turns reviewer decisions on staging records into
// public events.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/simu18/CUNYServe/internal/datetime"
	"github.com/simu18/CUNYServe/internal/metrics"
	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/storage"
)

// ErrInvalidStatus is returned for any target status other than approved
// or rejected.
var ErrInvalidStatus = errors.New("status must be approved or rejected")

// DefaultLocation is written when a listing gives no venue.
const DefaultLocation = "See Source"

// Decision is the outcome of one status change.
type Decision struct {
	Record      *storage.StagingRecord
	Published   bool
	PublicEvent *storage.PublicEvent
	// Reason explains why an approval was not published.
	Reason string
}

// Unpublished names an approved record that has no public event.
type Unpublished struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

// BulkResult summarises ApproveAll.
type BulkResult struct {
	Modified    int
	Published   int
	Unpublished []Unpublished
}

// Gate applies moderation decisions.
type Gate struct {
	store    storage.Store
	norm     *datetime.Normalizer
	location string
	metrics  *metrics.Metrics
}

// New builds a Gate normalizing dates in loc. An empty defaultLocation
// falls back to DefaultLocation.
func New(store storage.Store, loc *time.Location, defaultLocation string, m *metrics.Metrics) *Gate {
	if defaultLocation == "" {
		defaultLocation = DefaultLocation
	}
	return &Gate{
		store:    store,
		norm:     datetime.New(loc),
		location: defaultLocation,
		metrics:  m,
	}
}

// SetStatus records the decision and, for approvals, publishes the event.
// A date that cannot be normalized leaves the record approved and returns
// a Decision with Published false and a Reason; it is not an error.
func (g *Gate) SetStatus(ctx context.Context, id string, status storage.Status) (*Decision, error) {
	if status != storage.StatusApproved && status != storage.StatusRejected {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidStatus, status)
	}
	rec, err := g.store.SetStagingStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	d := &Decision{Record: rec}
	if status == storage.StatusApproved {
		if err := g.publish(ctx, d); err != nil {
			return nil, err
		}
	}
	g.metrics.ObserveDecision(string(status), d.Published)
	return d, nil
}

// ApproveAll approves every unverified record in one write, then publishes
// each one whose date normalizes. The rest stay approved but unpublished.
func (g *Gate) ApproveAll(ctx context.Context) (*BulkResult, error) {
	recs, err := g.store.ApproveAllUnverified(ctx)
	if err != nil {
		return nil, err
	}
	res := &BulkResult{Modified: len(recs), Unpublished: []Unpublished{}}
	for i := range recs {
		d := &Decision{Record: &recs[i]}
		if err := g.publish(ctx, d); err != nil {
			return res, err
		}
		g.metrics.ObserveDecision(string(storage.StatusApproved), d.Published)
		if d.Published {
			res.Published++
			continue
		}
		res.Unpublished = append(res.Unpublished, unpublished(d.Record, d.Reason))
	}
	log.Printf("moderation: bulk-approved %d records, %d published", res.Modified, res.Published)
	return res, nil
}

// Republish retries publication for approved records without a public
// event, for use after a parser fix or a manual edit.
func (g *Gate) Republish(ctx context.Context) (*BulkResult, error) {
	recs, err := g.store.ListUnpublishedApproved(ctx)
	if err != nil {
		return nil, err
	}
	res := &BulkResult{Unpublished: []Unpublished{}}
	for i := range recs {
		d := &Decision{Record: &recs[i]}
		if err := g.publish(ctx, d); err != nil {
			return res, err
		}
		if d.Published {
			res.Published++
			continue
		}
		res.Unpublished = append(res.Unpublished, unpublished(d.Record, d.Reason))
	}
	return res, nil
}

// Unpublished lists approved records that have no public event.
func (g *Gate) Unpublished(ctx context.Context) ([]Unpublished, error) {
	recs, err := g.store.ListUnpublishedApproved(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Unpublished, 0, len(recs))
	for i := range recs {
		reason := "not yet published"
		if res := g.norm.Normalize(recs[i].Date, recs[i].Time); !res.Success {
			reason = unparseableReason(&recs[i])
		}
		out = append(out, unpublished(&recs[i], reason))
	}
	return out, nil
}

// publish normalizes the record's schedule and upserts its public event,
// keyed by the staging ID so re-approval updates in place.
func (g *Gate) publish(ctx context.Context, d *Decision) error {
	rec := d.Record
	res := g.norm.Normalize(rec.Date, rec.Time)
	if !res.Success {
		d.Reason = unparseableReason(rec)
		log.Printf("moderation: %s approved but not published: %s", rec.ID, d.Reason)
		return nil
	}

	stagingID := rec.ID
	ev := &storage.PublicEvent{
		StagingID:   &stagingID,
		Title:       rec.Title,
		Description: description(rec),
		Start:       res.Start,
		End:         res.End,
		PartnerName: rec.College,
		Location:    g.location,
		SourceURL:   rec.SourceURL,
		IsPublic:    true,
	}
	if _, err := g.store.UpsertPublicEvent(ctx, ev); err != nil {
		return fmt.Errorf("publish %s: %w", rec.ID, err)
	}
	d.Published = true
	d.PublicEvent = ev
	return nil
}

func description(rec *storage.StagingRecord) string {
	if rec.Description != "" {
		return rec.Description
	}
	college := rec.College
	if college == "" || college == scraper.NotSpecified {
		return "More details at the source link."
	}
	return fmt.Sprintf("Event hosted by %s. More details at the source link.", college)
}

func unparseableReason(rec *storage.StagingRecord) string {
	return fmt.Sprintf("could not parse date %q", rec.Date)
}

func unpublished(rec *storage.StagingRecord, reason string) Unpublished {
	return Unpublished{ID: rec.ID, Title: rec.Title, Date: rec.Date, Time: rec.Time, Reason: reason}
}
