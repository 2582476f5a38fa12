package scraper

import (
	"net/http"
	"strings"

	"github.com/simu18/CUNYServe/internal/config"
)

// Build returns the enabled sources in a fixed order. r renders the HTML
// listings; nyc produces the calendar API response.
func Build(cfg *config.Config, r Renderer, nyc Exchange) []Source {
	var out []Source
	if cfg.Sources.CUNYEvents.Enabled {
		out = append(out, NewCUNYEvents(r, cfg.Sources.CUNYEvents))
	}
	if cfg.Sources.Admissions.Enabled {
		out = append(out, NewAdmissions(r, cfg.Sources.Admissions))
	}
	if cfg.Sources.NYCService.Enabled {
		out = append(out, NewNYCService(nyc, cfg.Sources.NYCService, cfg.Location()))
	}
	return out
}

// NewDirectCalendarExchange calls the calendar endpoint the way the page's
// script does.
func NewDirectCalendarExchange(f *Fetcher, cfg config.NYCServiceConfig) *DirectExchange {
	req := Request{
		Method: strings.ToUpper(cfg.Method),
		URL:    cfg.APIURL,
		Header: http.Header{
			"Accept":           {"application/json"},
			"X-Requested-With": {"XMLHttpRequest"},
		},
	}
	if cfg.PageURL != "" {
		req.Header.Set("Referer", cfg.PageURL)
	}
	if req.Method != http.MethodGet && cfg.RequestBody != "" {
		req.Body = []byte(cfg.RequestBody)
	}
	return &DirectExchange{Fetcher: f, Request: req}
}
