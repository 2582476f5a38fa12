// Package scraper holds the site-specific source adapters and the fetch,
// render and response-observation plumbing they share.
package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/simu18/CUNYServe/internal/storage"
)

// Placeholders written in place of fields a listing left empty.
const (
	NotSpecified     = "Not specified"
	NoTitle          = "No title"
	DateNotSpecified = "Date not specified"
	TimeNotSpecified = "Time not specified"
)

// Source fetches one external site and returns its candidate events.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]storage.RawEvent, error)
}

// Result is what one source contributed to a collection pass.
type Result struct {
	Source   string
	Events   []storage.RawEvent
	Err      error
	Duration time.Duration
}

// Collect runs src and contains any failure. A returned error or panic
// becomes an empty event list with Err set; it is logged, never raised.
func Collect(ctx context.Context, src Source) (res Result) {
	res.Source = src.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			log.Printf("%s: panic during fetch: %v\n%s", res.Source, r, debug.Stack())
		}
		if res.Err != nil {
			res.Events = nil
			log.Printf("%s: fetch failed, continuing with 0 events: %v", res.Source, res.Err)
		}
		if res.Events == nil {
			res.Events = []storage.RawEvent{}
		}
		res.Duration = time.Since(start)
	}()

	events, err := src.Fetch(ctx)
	res.Events, res.Err = events, err
	return res
}

// fill replaces empty optional fields with placeholders and stamps the
// source and capture time.
func fill(ev *storage.RawEvent, source string, at time.Time) {
	ev.Source = source
	ev.CapturedAt = at
	ev.Title = orDefault(ev.Title, NoTitle)
	ev.College = orDefault(ev.College, NotSpecified)
	ev.Date = orDefault(ev.Date, DateNotSpecified)
	ev.Time = orDefault(ev.Time, TimeNotSpecified)
	ev.EventType = orDefault(ev.EventType, NotSpecified)
	ev.Mode = orDefault(ev.Mode, NotSpecified)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// clean collapses runs of whitespace and trims.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolve makes href absolute against base. Empty or unparseable hrefs
// resolve to "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// slug reduces parts to a lowercase dash-separated token.
func slug(parts ...string) string {
	var b strings.Builder
	dash := false
	for _, p := range parts {
		for _, r := range strings.ToLower(p) {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				b.WriteRune(r)
				dash = false
			default:
				if !dash && b.Len() > 0 {
					b.WriteByte('-')
					dash = true
				}
			}
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
