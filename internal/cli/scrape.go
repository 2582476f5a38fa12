package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/ingest"
	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for ScrapeCommand.
func (c *ScrapeCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	sources, err := selectSources(buildSources(s.cfg), c.Source)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.executeWithSources(ctx, s.cfg, s.store, sources)
}

// executeWithSources runs one ingestion against provided sources (for testing).
func (c *ScrapeCommand) executeWithSources(ctx context.Context, cfg *config.Config, store storage.Store, sources []scraper.Source) error {
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	coord := newCoordinator(cfg, store, sources, nil)
	defer coord.Close()

	run, err := coord.RunSync(ctx, "cli")
	if errors.Is(err, ingest.ErrRunInProgress) {
		return fmt.Errorf("another ingestion run is in progress; try again later or run reconcile")
	}
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		if err := printJSON(run); err != nil {
			return err
		}
	} else {
		printRun(run)
	}

	if run.Status == storage.RunFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
	}
	return nil
}

func printRun(run *storage.Run) {
	took := "-"
	if run.EndTime != nil {
		took = run.EndTime.Sub(run.StartTime).Round(time.Millisecond).String()
	}
	fmt.Printf("Run %s %s in %s\n", run.ID, run.Status, took)

	names := make([]string, 0, len(run.Stats))
	for name := range run.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var total storage.SourceStats
	for _, name := range names {
		st := run.Stats[name]
		fmt.Printf("  %-16s new %-4d updated %-4d unchanged %-4d failed %d\n", name, st.New, st.Updated, st.Unchanged, st.Failed)
		total.New += st.New
		total.Updated += st.Updated
		total.Unchanged += st.Unchanged
		total.Failed += st.Failed
	}
	fmt.Printf("  %-16s new %-4d updated %-4d unchanged %-4d failed %d\n", "total", total.New, total.Updated, total.Unchanged, total.Failed)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
}
