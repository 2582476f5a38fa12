package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simu18/CUNYServe/internal/ingest"
	"github.com/simu18/CUNYServe/internal/metrics"
	"github.com/simu18/CUNYServe/internal/moderation"
	"github.com/simu18/CUNYServe/internal/storage"
)

const adminToken = "s3cret"

type fakeTrigger struct {
	busy   bool
	closed bool
	by     string
}

func (f *fakeTrigger) Start(ctx context.Context, triggeredBy string) (string, error) {
	if f.closed {
		return "", ingest.ErrClosed
	}
	if f.busy {
		return "", ingest.ErrRunInProgress
	}
	f.by = triggeredBy
	return "run-1", nil
}

type fixture struct {
	router  *gin.Engine
	store   *storage.SQLiteStore
	trigger *fakeTrigger
}

func setupTestRouter(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.OpenSQLite(":memory:", "memory")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	trigger := &fakeTrigger{}
	h := &Handler{
		Store:        store,
		Ingest:       trigger,
		Gate:         moderation.New(store, time.UTC, "", m),
		HistoryLimit: 10,
	}
	r := NewRouter(h, map[string]string{adminToken: "reviewer@cuny.edu"}, m)
	return &fixture{router: r, store: store, trigger: trigger}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) stage(t *testing.T, url, date string) string {
	t.Helper()
	res, err := f.store.UpsertStaging(context.Background(), storage.RawEvent{
		Source: "cuny-events", Title: "Event " + url, College: "Baruch College",
		Date: date, Time: "10am - 11am", SourceURL: url,
	})
	require.NoError(t, err)
	return res.ID
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := setupTestRouter(t)

	w := f.do(t, "GET", "/api/admin/test", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, "GET", "/api/admin/test", nil, "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "GET", "/api/admin/test", nil, adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reviewer@cuny.edu")
}

func TestTriggerScrapeReturnsAccepted(t *testing.T) {
	f := setupTestRouter(t)

	w := f.do(t, "POST", "/api/admin/scrape-events", nil, adminToken)
	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["runId"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, "reviewer@cuny.edu", f.trigger.by)

	f.trigger.busy = true
	w = f.do(t, "POST", "/api/admin/scrape-events", nil, adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	f.trigger.closed = true
	w = f.do(t, "POST", "/api/admin/scrape-events", nil, adminToken)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListStaging(t *testing.T) {
	f := setupTestRouter(t)
	f.stage(t, "https://events.cuny.edu/a", "August 14, 2025")
	f.stage(t, "https://events.cuny.edu/b", "August 15, 2025")

	w := f.do(t, "GET", "/api/admin/scraped-events", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []storage.StagingRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "https://events.cuny.edu/b", recs[0].SourceURL)
	assert.Equal(t, storage.StatusUnverified, recs[0].Status)

	w = f.do(t, "GET", "/api/admin/scraped-events?status=approved", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = f.do(t, "GET", "/api/admin/scraped-events?status=bogus", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "GET", "/api/admin/scraped-events?limit=-1", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetStatusResponses(t *testing.T) {
	f := setupTestRouter(t)
	good := f.stage(t, "https://events.cuny.edu/a", "August 14, 2025")
	bad := f.stage(t, "https://events.cuny.edu/b", "Date not specified")

	w := f.do(t, "PUT", "/api/admin/scraped-events/"+good, gin.H{"status": "approved"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var rec storage.StagingRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, storage.StatusApproved, rec.Status)

	w = f.do(t, "GET", "/api/admin/scraped-events/"+good, nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		ID          string               `json:"id"`
		Status      storage.Status       `json:"status"`
		PublicEvent *storage.PublicEvent `json:"publicEvent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, good, detail.ID)
	require.NotNil(t, detail.PublicEvent)
	assert.Equal(t, 10, detail.PublicEvent.Start.Hour())

	w = f.do(t, "GET", "/api/admin/scraped-events/missing", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "PUT", "/api/admin/scraped-events/"+good, gin.H{"status": "published"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PUT", "/api/admin/scraped-events/missing", gin.H{"status": "rejected"}, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "PUT", "/api/admin/scraped-events/"+bad, gin.H{"status": "approved"}, adminToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var partial struct {
		Error  string                `json:"error"`
		Record storage.StagingRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &partial))
	assert.Contains(t, partial.Error, "could not be published")
	assert.Equal(t, storage.StatusApproved, partial.Record.Status)

	stored, err := f.store.GetStaging(context.Background(), bad)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusApproved, stored.Status)

	w = f.do(t, "GET", "/api/admin/unpublished", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), bad)
}

func TestApproveAllAndPublicListing(t *testing.T) {
	f := setupTestRouter(t)
	f.stage(t, "https://events.cuny.edu/late", "August 20, 2025")
	f.stage(t, "https://events.cuny.edu/early", "August 10, 2025")
	f.stage(t, "https://events.cuny.edu/bad", "soon")

	w := f.do(t, "POST", "/api/admin/approve-all-pending", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Message        string                   `json:"message"`
		ModifiedCount  int                      `json:"modifiedCount"`
		PublishedCount int                      `json:"publishedCount"`
		Unpublished    []moderation.Unpublished `json:"unpublished"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.ModifiedCount)
	assert.Equal(t, 2, body.PublishedCount)
	assert.Len(t, body.Unpublished, 1)

	w = f.do(t, "GET", "/api/public/events", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var events []storage.PublicEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "https://events.cuny.edu/early", events[0].SourceURL)
	for _, ev := range events {
		assert.True(t, ev.IsPublic)
	}
}

func TestHistoryIsBoundedNewestFirst(t *testing.T) {
	f := setupTestRouter(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		run := &storage.Run{TriggeredBy: "scheduler", StartTime: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, f.store.BeginRun(ctx, run))
		require.NoError(t, f.store.CompleteRun(ctx, run.ID, map[string]storage.SourceStats{"cuny-events": {New: i}}, run.StartTime.Add(time.Second)))
	}

	w := f.do(t, "GET", "/api/admin/scrape-history", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 10)
	assert.Equal(t, 11, runs[0].Stats["cuny-events"].New)
	assert.True(t, runs[0].StartTime.After(runs[9].StartTime))
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestRouter(t)

	w := f.do(t, "GET", "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cunyserve_ingest_run_in_progress")

	w = f.do(t, "GET", "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
