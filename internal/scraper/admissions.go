package scraper

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/datetime"
	"github.com/simu18/CUNYServe/internal/storage"
)

// SourceAdmissions is the name of the CUNY undergraduate admissions source.
const SourceAdmissions = "cuny-admissions"

// AdmissionsCollege is the organizer used when a listing names none.
const AdmissionsCollege = "CUNY Admissions"

// Admissions scrapes the admissions events page, which has shipped both a
// table layout and a card layout.
type Admissions struct {
	renderer Renderer
	pageURL  string
	wait     time.Duration
	variants []Variant
	now      func() time.Time
}

// NewAdmissions builds the adapter from its config section.
func NewAdmissions(r Renderer, cfg config.ListingSourceConfig) *Admissions {
	a := &Admissions{
		renderer: r,
		pageURL:  cfg.URL,
		wait:     cfg.WaitTimeout,
		now:      time.Now,
	}
	a.variants = []Variant{
		{Name: "table", Selector: "table tr td .event", Extract: a.extractTable},
		{Name: "cards", Selector: "div.event-card", Extract: a.extractCards},
	}
	return a
}

func (s *Admissions) Name() string { return SourceAdmissions }

func (s *Admissions) Fetch(ctx context.Context) ([]storage.RawEvent, error) {
	doc, err := s.renderer.Render(ctx, s.pageURL, waitSelector(s.variants), s.wait)
	if err != nil {
		return nil, err
	}
	events, variant := extractFirst(doc, s.variants)
	if variant == "" {
		log.Printf("%s: no known layout matched %s", SourceAdmissions, s.pageURL)
		return nil, nil
	}
	log.Printf("%s: %s layout yielded %d events", SourceAdmissions, variant, len(events))
	return events, nil
}

func (s *Admissions) extractTable(doc *goquery.Document) []storage.RawEvent {
	at := s.now()
	var out []storage.RawEvent
	doc.Find("table tr td .event").Each(func(_ int, event *goquery.Selection) {
		cell := event.Closest("td")
		if cell.Length() == 0 {
			return
		}
		date, tm := datetime.SplitDateTime(clean(cell.Find(".cvc-d").First().Text()))
		typ := labelledValue(cell, "Event Type:")
		mode := labelledValue(cell, "Mode:")

		desc := cell.Find(".cvc-v").FilterFunction(func(_ int, v *goquery.Selection) bool {
			if v.Closest("h3").Length() > 0 || v.Closest(".cvc-ht").Length() > 0 {
				return false
			}
			return !v.IsSelection(typ) && !v.IsSelection(mode)
		}).First()

		href, _ := cell.Find(".dt-links a").First().Attr("href")
		ev := storage.RawEvent{
			Title:       clean(event.Find("h3 .cvc-v").First().Text()),
			College:     clean(cell.Find(".cvc-c").First().Text()),
			Date:        date,
			Time:        tm,
			EventType:   clean(typ.Text()),
			Mode:        clean(mode.Text()),
			Description: clean(desc.Text()),
		}
		out = append(out, s.finish(doc, ev, href, at))
	})
	return out
}

func (s *Admissions) extractCards(doc *goquery.Document) []storage.RawEvent {
	at := s.now()
	var out []storage.RawEvent
	doc.Find("div.event-card").Each(func(_ int, card *goquery.Selection) {
		date, tm := datetime.SplitDateTime(clean(card.Find(".event-datetime").First().Text()))
		if date == "" {
			date = clean(card.Find(".event-date").First().Text())
			tm = clean(card.Find(".event-time").First().Text())
			if tm == "" {
				date, tm = datetime.SplitDateTime(date)
			}
		}
		title := clean(card.Find(".event-title").First().Text())
		if title == "" {
			title = clean(card.Find("h3").First().Text())
		}
		href, _ := card.Find("a.event-link, .event-title a, h3 a").First().Attr("href")
		ev := storage.RawEvent{
			Title:       title,
			College:     clean(card.Find(".event-college").First().Text()),
			Date:        date,
			Time:        tm,
			EventType:   clean(card.Find(".event-type").First().Text()),
			Mode:        clean(card.Find(".event-mode").First().Text()),
			Description: clean(card.Find(".event-description").First().Text()),
		}
		out = append(out, s.finish(doc, ev, href, at))
	})
	return out
}

// finish fills placeholders and picks the dedup key. Items without their
// own link share the page URL, so they are keyed by page URL plus a slug of
// their title and schedule.
func (s *Admissions) finish(doc *goquery.Document, ev storage.RawEvent, href string, at time.Time) storage.RawEvent {
	ev.College = orDefault(ev.College, AdmissionsCollege)
	fill(&ev, SourceAdmissions, at)

	ev.SourceURL = resolve(doc.Url, href)
	if ev.SourceURL == "" {
		ev.SourceURL = s.pageURL
		if doc.Url != nil {
			ev.SourceURL = doc.Url.String()
		}
		ev.Key = ev.SourceURL + "#" + slug(ev.Title, ev.Date, ev.Time)
	}
	return ev
}

// labelledValue returns the element right after the .cvc-ht label that
// contains label.
func labelledValue(cell *goquery.Selection, label string) *goquery.Selection {
	return cell.Find(".cvc-ht").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return strings.Contains(h.Text(), label)
	}).First().Next()
}
