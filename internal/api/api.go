// Package api serves the admin review workflow and the public event
// listing over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simu18/CUNYServe/internal/ingest"
	"github.com/simu18/CUNYServe/internal/moderation"
	"github.com/simu18/CUNYServe/internal/storage"
)

// Trigger starts a background ingestion run.
type Trigger interface {
	Start(ctx context.Context, triggeredBy string) (string, error)
}

type Handler struct {
	Store        storage.Store
	Ingest       Trigger
	Gate         *moderation.Gate
	HistoryLimit int
}

func internalError(c *gin.Context, err error) {
	log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// TriggerScrape starts an ingestion run and answers before it finishes.
func (h *Handler) TriggerScrape(c *gin.Context) {
	id, err := h.Ingest.Start(c.Request.Context(), adminIdentity(c))
	if errors.Is(err, ingest.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, ingest.ErrClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Scraping process started in the background.",
		"runId":   id,
	})
}

// ListStaging returns staging records, newest import first.
func (h *Handler) ListStaging(c *gin.Context) {
	q := storage.StagingQuery{
		Status: storage.Status(c.Query("status")),
		Source: c.Query("source"),
	}
	if q.Status != "" && !q.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", q.Status)})
		return
	}
	var err error
	if q.Limit, err = intQuery(c, "limit", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Offset, err = intQuery(c, "offset", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recs, err := h.Store.ListStaging(c.Request.Context(), q)
	if err != nil {
		internalError(c, err)
		return
	}
	if recs == nil {
		recs = []storage.StagingRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

// stagingDetail is a staging record with its public event, if published.
type stagingDetail struct {
	storage.StagingRecord
	PublicEvent *storage.PublicEvent `json:"publicEvent"`
}

func (h *Handler) GetStaging(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := h.Store.GetStaging(ctx, c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found."})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	pub, err := h.Store.GetPublicByStaging(ctx, rec.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stagingDetail{StagingRecord: *rec, PublicEvent: pub})
}

// SetStatus approves or rejects one staging record. An approval whose date
// cannot be parsed is still saved; the response is a 500 carrying the
// updated record so the reviewer sees both facts.
func (h *Handler) SetStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status."})
		return
	}

	d, err := h.Gate.SetStatus(c.Request.Context(), c.Param("id"), storage.Status(input.Status))
	switch {
	case errors.Is(err, moderation.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status."})
		return
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found."})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	if d.Record.Status == storage.StatusApproved && !d.Published {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "Event approved, but could not be published: " + d.Reason,
			"record": d.Record,
		})
		return
	}
	c.JSON(http.StatusOK, d.Record)
}

func (h *Handler) ApproveAll(c *gin.Context) {
	res, err := h.Gate.ApproveAll(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        fmt.Sprintf("%d events have been approved.", res.Modified),
		"modifiedCount":  res.Modified,
		"publishedCount": res.Published,
		"unpublished":    res.Unpublished,
	})
}

// Unpublished lists approved records that have no public event.
func (h *Handler) Unpublished(c *gin.Context) {
	un, err := h.Gate.Unpublished(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, un)
}

// History returns the most recent runs, newest first.
func (h *Handler) History(c *gin.Context) {
	runs, err := h.Store.RecentRuns(c.Request.Context(), h.HistoryLimit)
	if err != nil {
		internalError(c, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Admin route reached as " + adminIdentity(c)})
}

// PublicEvents lists public events by start time.
func (h *Handler) PublicEvents(c *gin.Context) {
	events, err := h.Store.ListPublicEvents(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	if events == nil {
		events = []storage.PublicEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
