package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/logging"
	"github.com/simu18/CUNYServe/internal/storage"
)

// SourceNYCService is the name of the NYC Service volunteer calendar source.
const SourceNYCService = "nyc-service"

// nycDateLayout renders occurrence dates like "Thu, Aug 14, 2025".
const nycDateLayout = "Mon, Jan 2, 2006"

// NYCService reads the volunteer calendar, whose listings only arrive
// through a background JSON endpoint.
type NYCService struct {
	exchange Exchange
	pageURL  string
	apiURL   string
	method   string
	settle   time.Duration
	loc      *time.Location
	now      func() time.Time
}

// NewNYCService builds the adapter. ex produces the calendar response:
// either a page load observed by a browser or a direct call.
func NewNYCService(ex Exchange, cfg config.NYCServiceConfig, loc *time.Location) *NYCService {
	if loc == nil {
		loc = time.Local
	}
	return &NYCService{
		exchange: ex,
		pageURL:  cfg.PageURL,
		apiURL:   cfg.APIURL,
		method:   cfg.Method,
		settle:   cfg.SettleTimeout,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *NYCService) Name() string { return SourceNYCService }

func (s *NYCService) Fetch(ctx context.Context) ([]storage.RawEvent, error) {
	capture := NewCapture(s.apiURL, s.method)
	bodies, err := capture.Await(ctx, s.exchange, s.settle)
	if err != nil {
		return nil, fmt.Errorf("await %s %s: %w", s.method, s.apiURL, err)
	}

	at := s.now()
	var out []storage.RawEvent
	seen := make(map[string]bool)
	for i, body := range bodies {
		events, err := s.parse(body, at)
		if err != nil {
			log.Printf("%s: response %d: %v", SourceNYCService, i+1, err)
			continue
		}
		for _, ev := range events {
			if seen[ev.Key] {
				continue
			}
			seen[ev.Key] = true
			out = append(out, ev)
		}
	}
	log.Printf("%s: captured %d occurrences from %d responses", SourceNYCService, len(out), len(bodies))
	return out, nil
}

type calendarPayload struct {
	Items []struct {
		Occurrences []occurrence `json:"occurrences"`
	} `json:"items"`
}

type occurrence struct {
	OpportunityName        string `json:"opportunityName"`
	OrganizationServedName string `json:"organizationServedName"`
	StartDateTimeISO       string `json:"startDateTimeISO"`
	StartTime              string `json:"startTime"`
	EndTime                string `json:"endTime"`
	OpportunityLink        string `json:"opportunityLink"`
}

// parse flattens the per-day calendar into one candidate per occurrence.
// Occurrences of one opportunity share a link, so the key adds the date.
func (s *NYCService) parse(body []byte, at time.Time) ([]storage.RawEvent, error) {
	var payload calendarPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	base, _ := url.Parse(s.pageURL)
	var out []storage.RawEvent
	for _, day := range payload.Items {
		for _, occ := range day.Occurrences {
			link := resolve(base, occ.OpportunityLink)
			if link == "" {
				logging.Debugf("%s: skipping %q without a link", SourceNYCService, occ.OpportunityName)
				continue
			}
			ev := storage.RawEvent{
				Title:     clean(occ.OpportunityName),
				College:   clean(occ.OrganizationServedName),
				Time:      occurrenceTime(occ),
				SourceURL: link,
			}
			day := ""
			if start, ok := s.parseISO(occ.StartDateTimeISO); ok {
				ev.Date = start.Format(nycDateLayout)
				day = start.Format("2006-01-02")
			}
			fill(&ev, SourceNYCService, at)
			ev.Key = link + "#" + orDefault(day, slug(ev.Date))
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *NYCService) parseISO(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.loc), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func occurrenceTime(occ occurrence) string {
	start, end := clean(occ.StartTime), clean(occ.EndTime)
	switch {
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return start
	}
	return ""
}
