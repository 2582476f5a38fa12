package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simu18/CUNYServe/internal/config"
)

func cunyPage(items, next string) string {
	pagination := ""
	if next != "" {
		pagination = fmt.Sprintf(`<div class="pagination"><a href="/page/1/">Prev</a><a class="current">1</a><a href="%s">Next</a></div>`, next)
	}
	return `<html><body><ul class="cec-list">` + items + `</ul>` + pagination + `</body></html>`
}

func cunyItem(href, title, college, date, tm string) string {
	return fmt.Sprintf(`<li class="cec-list-item">
  <h2 class="low"><a href="%s">%s</a></h2>
  <h4 class="low-normal">%s</h4>
  <h4 class="low-normal">%s</h4>
  <h4>%s</h4>
</li>`, href, title, college, date, tm)
}

func cunySource(srvURL string, maxPages int) *CUNYEvents {
	src := NewCUNYEvents(NewHTTPRenderer(NewFetcher(testHTTPConfig())), config.ListingSourceConfig{
		Enabled:     true,
		URL:         srvURL + "/",
		MaxPages:    maxPages,
		WaitTimeout: 2 * time.Second,
	})
	src.now = func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }
	return src
}

func TestCUNYEventsFollowsNextLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cunyPage(
			cunyItem("/event/food-drive/", "Food Drive", "Baruch College", "Thursday, August 14, 2025", "10:00 AM - 12:00 PM")+
				cunyItem("/event/park-cleanup/", "Park Cleanup", "Hunter College", "Friday, August 15, 2025", ""),
			"/page/2/"))
	})
	mux.HandleFunc("/page/2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cunyPage(cunyItem("/event/tutoring/", "Tutoring", "", "Saturday, August 16, 2025", "1pm"), ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	events, err := cunySource(srv.URL, 10).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0]
	assert.Equal(t, SourceCUNYEvents, first.Source)
	assert.Equal(t, "Food Drive", first.Title)
	assert.Equal(t, "Baruch College", first.College)
	assert.Equal(t, "Thursday, August 14, 2025", first.Date)
	assert.Equal(t, "10:00 AM - 12:00 PM", first.Time)
	assert.Equal(t, srv.URL+"/event/food-drive/", first.SourceURL)
	assert.Equal(t, first.SourceURL, first.SourceKey())

	assert.Equal(t, TimeNotSpecified, events[1].Time)
	assert.Equal(t, NotSpecified, events[2].College)
}

func TestCUNYEventsRespectsPageCap(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, cunyPage(
			cunyItem(fmt.Sprintf("/event/%d/", hits), "Event", "Baruch", "August 14, 2025", "10am"),
			fmt.Sprintf("/page/%d/", hits+1)))
	}))
	defer srv.Close()

	events, err := cunySource(srv.URL, 2).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, hits)
}

func TestCUNYEventsStopsOnEmptyPageAndLoops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cunyPage(cunyItem("/event/a/", "A", "Baruch", "August 14, 2025", "10am"), "/"))
	}))
	defer srv.Close()

	events, err := cunySource(srv.URL, 10).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCUNYEventsSkipsItemsWithoutLinkOrDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cunyPage(`<li class="cec-list-item"><h2 class="low">No link</h2></li>`+
			cunyItem("/event/ok/", "OK", "Baruch", "August 14, 2025", "10am"), ""))
	}))
	defer srv.Close()

	events, err := cunySource(srv.URL, 10).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "OK", events[0].Title)
}

func TestCUNYEventsFirstPageFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := cunySource(srv.URL, 10).Fetch(context.Background())
	assert.Error(t, err)
}
