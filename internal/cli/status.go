package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version      string           `json:"version"`
	Driver       string           `json:"driver"`
	Staging      map[string]int64 `json:"staging"`
	PublicEvents int64            `json:"public_events"`
	Unpublished  int64            `json:"unpublished"`
	LastRun      *storage.Run     `json:"last_run,omitempty"`
	RunActive    bool             `json:"run_active"`
	Sources      []string         `json:"sources"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithStore(s.cfg, s.store)
}

// executeWithStore runs status against a provided store (for testing).
func (c *StatusCommand) executeWithStore(cfg *config.Config, store storage.Store) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	lease, err := store.CurrentLease(ctx)
	if err != nil {
		return fmt.Errorf("read lease: %w", err)
	}
	active := lease != nil && time.Since(lease.HeartbeatAt) < cfg.Runs.StaleAfter

	if c.globals != nil && c.globals.JSON {
		out := statusJSON{
			Version:      c.version,
			Driver:       cfg.Storage.Driver,
			Staging:      make(map[string]int64, len(stats.Staging)),
			PublicEvents: stats.PublicEvents,
			Unpublished:  stats.Unpublished,
			LastRun:      stats.LastRun,
			RunActive:    active,
			Sources:      enabledSources(cfg),
		}
		for st, n := range stats.Staging {
			out.Staging[string(st)] = n
		}
		return printJSON(out)
	}

	fmt.Println("CUNYServe Status")
	fmt.Println("================")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Storage:       %s\n", cfg.Storage.Driver)
	fmt.Printf("Unverified:    %s\n", formatNumber(stats.Staging[storage.StatusUnverified]))
	fmt.Printf("Approved:      %s\n", formatNumber(stats.Staging[storage.StatusApproved]))
	fmt.Printf("Rejected:      %s\n", formatNumber(stats.Staging[storage.StatusRejected]))
	fmt.Printf("Public:        %s\n", formatNumber(stats.PublicEvents))
	if stats.Unpublished > 0 {
		fmt.Printf("Unpublished:   %s (approved, date did not parse)\n", formatNumber(stats.Unpublished))
	}

	fmt.Println()
	if run := stats.LastRun; run != nil {
		fmt.Printf("Last run:      %s (%s, by %s)\n", formatTime(run.StartTime, cfg.Location()), run.Status, run.TriggeredBy)
		if run.Error != "" {
			fmt.Printf("Last error:    %s\n", run.Error)
		}
	} else {
		fmt.Println("Last run:      never")
	}
	if active {
		fmt.Printf("Run active:    yes (%s)\n", lease.Holder)
	} else {
		fmt.Println("Run active:    no")
	}
	fmt.Printf("Sources:       %v\n", enabledSources(cfg))

	return nil
}

func enabledSources(cfg *config.Config) []string {
	var out []string
	if cfg.Sources.CUNYEvents.Enabled {
		out = append(out, scraper.SourceCUNYEvents)
	}
	if cfg.Sources.Admissions.Enabled {
		out = append(out, scraper.SourceAdmissions)
	}
	if cfg.Sources.NYCService.Enabled {
		out = append(out, scraper.SourceNYCService)
	}
	return out
}
