package scraper

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/storage"
)

// SourceCUNYEvents is the name of the paginated CUNY events calendar source.
const SourceCUNYEvents = "cuny-events"

const cunyEventsList = "ul.cec-list"

// CUNYEvents scrapes the server-rendered, paginated events.cuny.edu listing.
type CUNYEvents struct {
	renderer Renderer
	startURL string
	maxPages int
	wait     time.Duration
	now      func() time.Time
}

// NewCUNYEvents builds the adapter from its config section.
func NewCUNYEvents(r Renderer, cfg config.ListingSourceConfig) *CUNYEvents {
	return &CUNYEvents{
		renderer: r,
		startURL: cfg.URL,
		maxPages: cfg.MaxPages,
		wait:     cfg.WaitTimeout,
		now:      time.Now,
	}
}

func (s *CUNYEvents) Name() string { return SourceCUNYEvents }

// Fetch walks "next" links up to the page cap. A failure on the first page
// is returned; a failure on a later page ends the walk and keeps what was
// already collected.
func (s *CUNYEvents) Fetch(ctx context.Context) ([]storage.RawEvent, error) {
	var all []storage.RawEvent
	visited := make(map[string]bool)
	pageURL := s.startURL

	for page := 1; page <= s.maxPages && pageURL != ""; page++ {
		if visited[pageURL] {
			log.Printf("%s: next link loops back to %s, stopping", SourceCUNYEvents, pageURL)
			break
		}
		visited[pageURL] = true

		doc, err := s.renderer.Render(ctx, pageURL, cunyEventsList, s.wait)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Printf("%s: page %d failed, ending walk: %v", SourceCUNYEvents, page, err)
			break
		}

		events := s.parsePage(doc)
		if len(events) == 0 {
			log.Printf("%s: page %d has no events, ending walk", SourceCUNYEvents, page)
			break
		}
		all = append(all, events...)
		log.Printf("%s: page %d yielded %d events (%d total)", SourceCUNYEvents, page, len(events), len(all))

		pageURL = nextPage(doc)
	}
	return all, nil
}

func (s *CUNYEvents) parsePage(doc *goquery.Document) []storage.RawEvent {
	at := s.now()
	var out []storage.RawEvent
	doc.Find("li.cec-list-item").Each(func(_ int, item *goquery.Selection) {
		title := item.Find("h2.low a").First()
		date := item.Find("h4.low-normal:nth-of-type(2)").First()
		href, _ := title.Attr("href")
		link := resolve(doc.Url, href)
		if title.Length() == 0 || date.Length() == 0 || link == "" {
			return
		}
		ev := storage.RawEvent{
			Title:     clean(title.Text()),
			College:   clean(item.Find("h4.low-normal:nth-of-type(1)").First().Text()),
			Date:      clean(date.Text()),
			Time:      clean(item.Find("h4:not(.low-normal)").First().Text()),
			SourceURL: link,
		}
		fill(&ev, SourceCUNYEvents, at)
		out = append(out, ev)
	})
	return out
}

// nextPage returns the absolute href of the pagination link labelled
// "next", or "" when there is none.
func nextPage(doc *goquery.Document) string {
	var next string
	doc.Find("div.pagination a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.EqualFold(clean(a.Text()), "next") {
			return true
		}
		href, _ := a.Attr("href")
		next = resolve(doc.Url, href)
		return false
	})
	return next
}
