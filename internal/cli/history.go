package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Limit == 0 {
		c.Limit = s.cfg.Runs.HistoryLimit
	}
	return c.executeWithStore(s.store, s.cfg.Location())
}

// executeWithStore prints runs from a provided store (for testing).
func (c *HistoryCommand) executeWithStore(store storage.Store, loc *time.Location) error {
	if c.Limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	limit := c.Limit
	if limit == 0 {
		limit = 10
	}

	runs, err := store.RecentRuns(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("recent runs: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		if runs == nil {
			runs = []storage.Run{}
		}
		return printJSON(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No ingestion runs recorded")
		return nil
	}

	for i, r := range runs {
		dur := "-"
		if r.EndTime != nil {
			dur = r.EndTime.Sub(r.StartTime).Round(time.Second).String()
		}
		fmt.Printf("%s  %-9s  %-8s  by %s  (%s)\n", formatTime(r.StartTime, loc), r.Status, dur, r.TriggeredBy, r.ID)

		names := make([]string, 0, len(r.Stats))
		for name := range r.Stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := r.Stats[name]
			fmt.Printf("    %-16s new %d  updated %d  unchanged %d  failed %d\n", name, st.New, st.Updated, st.Unchanged, st.Failed)
		}
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
		if i < len(runs)-1 {
			fmt.Println()
		}
	}
	return nil
}
