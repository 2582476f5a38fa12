package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for show command")
	}

	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithStore(s.store, s.cfg.Location())
}

// executeWithStore prints one record from a provided store (for testing).
func (c *ShowCommand) executeWithStore(store storage.Store, loc *time.Location) error {
	ctx := context.Background()

	rec, err := store.GetStaging(ctx, c.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("event not found: %s", c.ID)
	}
	if err != nil {
		return err
	}

	pub, err := store.GetPublicByStaging(ctx, rec.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(struct {
			Record      *storage.StagingRecord `json:"record"`
			PublicEvent *storage.PublicEvent   `json:"publicEvent"`
		}{rec, pub})
	}

	switch c.Format {
	case "url":
		fmt.Println(rec.SourceURL)
	case "date":
		fmt.Printf("%s | %s\n", rec.Date, rec.Time)
	case "text", "":
		printRecord(rec, pub, loc)
	default:
		return fmt.Errorf("unknown format %q (use text, url, or date)", c.Format)
	}
	return nil
}

func printRecord(rec *storage.StagingRecord, pub *storage.PublicEvent, loc *time.Location) {
	fmt.Printf("# %s\n\n", rec.Title)
	fmt.Printf("ID:          %s\n", rec.ID)
	fmt.Printf("Status:      %s\n", rec.Status)
	fmt.Printf("Source:      %s\n", rec.Source)
	fmt.Printf("College:     %s\n", rec.College)
	fmt.Printf("Date:        %s\n", rec.Date)
	fmt.Printf("Time:        %s\n", rec.Time)
	if rec.EventType != "" {
		fmt.Printf("Type:        %s\n", rec.EventType)
	}
	if rec.Mode != "" {
		fmt.Printf("Mode:        %s\n", rec.Mode)
	}
	fmt.Printf("URL:         %s\n", rec.SourceURL)
	fmt.Printf("Imported:    %s\n", formatTime(rec.ImportedAt, loc))
	fmt.Printf("Scraped:     %s\n", formatTime(rec.ScrapedAt, loc))
	if rec.Description != "" {
		fmt.Println()
		fmt.Println(rec.Description)
	}

	fmt.Println()
	if pub == nil {
		fmt.Println("Public event: none")
		return
	}
	fmt.Printf("Public event: %s\n", pub.ID)
	fmt.Printf("  Start:     %s\n", formatTime(pub.Start, loc))
	fmt.Printf("  End:       %s\n", formatTime(pub.End, loc))
	fmt.Printf("  Location:  %s\n", pub.Location)
}
