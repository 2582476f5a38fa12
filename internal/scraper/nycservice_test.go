package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/storage"
)

const calendarJSON = `{"items":[
 {"occurrences":[
   {"opportunityName":"Meal Packing","organizationServedName":"City Harvest","startDateTimeISO":"2025-08-14T14:00:00Z","startTime":"10:00 AM","endTime":"12:00 PM","opportunityLink":"/opportunity/meal-packing"},
   {"opportunityName":"Meal Packing","organizationServedName":"City Harvest","startDateTimeISO":"2025-08-15T14:00:00Z","startTime":"10:00 AM","endTime":"12:00 PM","opportunityLink":"/opportunity/meal-packing"}
 ]},
 {"occurrences":[]},
 {"occurrences":[
   {"opportunityName":"Tree Care","startDateTimeISO":"","startTime":"9:00 AM","opportunityLink":"https://example.org/trees"},
   {"opportunityName":"No Link"}
 ]}
]}`

func nycConfig(apiURL string) config.NYCServiceConfig {
	return config.NYCServiceConfig{
		Enabled:       true,
		PageURL:       "https://www.nycservice.org/calendar",
		APIURL:        apiURL,
		Method:        http.MethodPost,
		RequestBody:   `{"page":1}`,
		SettleTimeout: 2 * time.Second,
	}
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// scriptedExchange replays responses and then blocks like a live page.
type scriptedExchange struct {
	responses []ObservedResponse
	err       error
}

func (s *scriptedExchange) Run(ctx context.Context, obs ResponseObserver) error {
	if s.err != nil {
		return s.err
	}
	for _, r := range s.responses {
		obs.Observe(r)
	}
	<-ctx.Done()
	return nil
}

func TestNYCServiceDirectExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"page":1}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, calendarJSON)
	}))
	defer srv.Close()

	cfg := nycConfig(srv.URL + "/search/getOpportunitiesCalendar")
	src := NewNYCService(NewDirectCalendarExchange(NewFetcher(testHTTPConfig()), cfg), cfg, newYork(t))

	events, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	ev := events[0]
	assert.Equal(t, SourceNYCService, ev.Source)
	assert.Equal(t, "Meal Packing", ev.Title)
	assert.Equal(t, "City Harvest", ev.College)
	assert.Equal(t, "Thu, Aug 14, 2025", ev.Date)
	assert.Equal(t, "10:00 AM - 12:00 PM", ev.Time)
	assert.Equal(t, "https://www.nycservice.org/opportunity/meal-packing", ev.SourceURL)
	assert.Equal(t, ev.SourceURL+"#2025-08-14", ev.SourceKey())

	assert.Equal(t, events[0].SourceURL, events[1].SourceURL)
	assert.NotEqual(t, events[0].SourceKey(), events[1].SourceKey())

	trees := events[2]
	assert.Equal(t, DateNotSpecified, trees.Date)
	assert.Equal(t, "9:00 AM", trees.Time)
	assert.Equal(t, NotSpecified, trees.College)
}

func TestNYCServiceObservesOnlyMatchingResponses(t *testing.T) {
	api := "https://www.nycservice.org/search/getOpportunitiesCalendar"
	ex := &scriptedExchange{responses: []ObservedResponse{
		{URL: "https://www.nycservice.org/calendar", Method: "GET", Status: 200, Body: []byte("<html>")},
		{URL: api, Method: "GET", Status: 200, Body: []byte(`{"items":[]}`)},
		{URL: api + "?ts=1", Method: "POST", Status: 200, Body: []byte(calendarJSON)},
	}}
	cfg := nycConfig(api)
	src := NewNYCService(ex, cfg, time.UTC)

	start := time.Now()
	events, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Less(t, time.Since(start), cfg.SettleTimeout)
}

func TestNYCServiceTimesOutWithoutResponse(t *testing.T) {
	cfg := nycConfig("https://www.nycservice.org/search/getOpportunitiesCalendar")
	cfg.SettleTimeout = 50 * time.Millisecond
	src := NewNYCService(&scriptedExchange{}, cfg, time.UTC)

	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestNYCServiceExchangeFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	cfg := nycConfig("https://www.nycservice.org/search/getOpportunitiesCalendar")
	src := NewNYCService(&scriptedExchange{err: boom}, cfg, time.UTC)

	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCaptureIgnoresErrorStatus(t *testing.T) {
	c := NewCapture("https://example.org/api/", "post")
	c.Observe(ObservedResponse{URL: "https://EXAMPLE.org/api", Method: "POST", Status: 500})
	select {
	case <-c.Done():
		t.Fatal("error response should not complete the capture")
	default:
	}
	c.Observe(ObservedResponse{URL: "https://EXAMPLE.org/api", Method: "POST", Status: 200, Body: []byte("x")})
	<-c.Done()
	assert.Equal(t, [][]byte{[]byte("x")}, c.Bodies())
}

type fakeSource struct {
	name   string
	events []storage.RawEvent
	err    error
	panic  bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]storage.RawEvent, error) {
	if f.panic {
		panic("selector exploded")
	}
	return f.events, f.err
}

func TestCollectContainsFailures(t *testing.T) {
	res := Collect(context.Background(), &fakeSource{name: "broken", err: errors.New("timeout"), events: []storage.RawEvent{{Title: "partial"}}})
	assert.Error(t, res.Err)
	assert.Empty(t, res.Events)
	assert.NotNil(t, res.Events)

	res = Collect(context.Background(), &fakeSource{name: "panicky", panic: true})
	assert.ErrorContains(t, res.Err, "selector exploded")
	assert.Empty(t, res.Events)

	res = Collect(context.Background(), &fakeSource{name: "ok", events: []storage.RawEvent{{Title: "a"}}})
	assert.NoError(t, res.Err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, "ok", res.Source)
}

func TestBuildHonoursEnabledFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources.Admissions.Enabled = false
	f := NewFetcher(testHTTPConfig())

	sources := Build(cfg, NewHTTPRenderer(f), NewDirectCalendarExchange(f, cfg.Sources.NYCService))
	require.Len(t, sources, 2)
	assert.Equal(t, SourceCUNYEvents, sources[0].Name())
	assert.Equal(t, SourceNYCService, sources[1].Name())
}
