package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/storage"
)

// SourceManual labels candidates staged by hand.
const SourceManual = "manual"

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if err := c.validate(); err != nil {
		return err
	}

	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithStore(s.store)
}

func (c *AddCommand) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("--title is required for add command")
	}
	if strings.TrimSpace(c.Date) == "" {
		return fmt.Errorf("--date is required for add command")
	}
	if c.URL == "" {
		return fmt.Errorf("--url is required for add command")
	}
	parsed, err := url.ParseRequestURI(c.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("invalid URL: %s", c.URL)
	}
	return nil
}

// executeWithStore stages the candidate in a provided store (used by tests).
func (c *AddCommand) executeWithStore(store storage.Store) error {
	if err := c.validate(); err != nil {
		return err
	}

	ev := storage.RawEvent{
		Source:      SourceManual,
		Title:       strings.TrimSpace(c.Title),
		College:     orNotSpecified(c.College),
		Date:        strings.TrimSpace(c.Date),
		Time:        c.Time,
		EventType:   scraper.NotSpecified,
		Mode:        scraper.NotSpecified,
		Description: strings.TrimSpace(c.Description),
		SourceURL:   c.URL,
		CapturedAt:  time.Now(),
	}
	if strings.TrimSpace(ev.Time) == "" {
		ev.Time = scraper.TimeNotSpecified
	}

	res, err := store.UpsertStaging(context.Background(), ev)
	if err != nil {
		return fmt.Errorf("staging event: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"id":      res.ID,
			"outcome": res.Outcome.String(),
			"url":     ev.SourceURL,
			"title":   ev.Title,
			"date":    ev.Date,
			"time":    ev.Time,
		})
	}

	fmt.Printf("Staged event %s (%s)\n", res.ID, res.Outcome)
	fmt.Printf("  URL: %s\n", ev.SourceURL)
	fmt.Printf("  Title: %s\n", ev.Title)
	fmt.Printf("  When: %s | %s\n", ev.Date, ev.Time)
	return nil
}

func orNotSpecified(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return scraper.NotSpecified
	}
	return s
}
