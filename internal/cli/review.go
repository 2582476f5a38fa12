package cli

import (
	"context"
	"fmt"

	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for ReviewCommand.
func (c *ReviewCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithStore(s.store)
}

// executeWithStore lists staging records from a provided store (for testing).
func (c *ReviewCommand) executeWithStore(store storage.Store) error {
	q := storage.StagingQuery{
		Source: c.Source,
		Limit:  c.Limit,
		Offset: c.Offset,
	}
	// "all" lifts the status filter.
	if c.Status != "" && c.Status != "all" {
		q.Status = storage.Status(c.Status)
		if !q.Status.Valid() {
			return fmt.Errorf("invalid --status value %q (use unverified, approved, rejected, or all)", c.Status)
		}
	}
	if c.Limit < 0 || c.Offset < 0 {
		return fmt.Errorf("--limit and --offset must not be negative")
	}

	recs, err := store.ListStaging(context.Background(), q)
	if err != nil {
		return fmt.Errorf("list staging: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		if recs == nil {
			recs = []storage.StagingRecord{}
		}
		return printJSON(struct {
			Count   int                     `json:"count"`
			Status  string                  `json:"status"`
			Results []storage.StagingRecord `json:"results"`
		}{len(recs), c.Status, recs})
	}
	return c.printHuman(recs)
}

func (c *ReviewCommand) printHuman(recs []storage.StagingRecord) error {
	label := c.Status
	if label == "" {
		label = "all"
	}
	if len(recs) == 0 {
		fmt.Printf("No %s events\n", label)
		return nil
	}

	word := "events"
	if len(recs) == 1 {
		word = "event"
	}
	fmt.Printf("%d %s %s\n\n", len(recs), label, word)

	for i, r := range recs {
		fmt.Printf("%d. %s\n", i+1+c.Offset, r.Title)
		fmt.Printf("   %s · %s · %s\n", r.College, r.Date, r.Time)
		fmt.Printf("   %s\n", r.SourceURL)
		fmt.Printf("   id %s · %s · %s\n", r.ID, r.Source, r.Status)

		if i < len(recs)-1 {
			fmt.Println()
		}
	}
	return nil
}
