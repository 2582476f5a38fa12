package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for ReconcileCommand.
func (c *ReconcileCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithStore(s.cfg, s.store)
}

// executeWithStore fails abandoned runs in a provided store (for testing).
func (c *ReconcileCommand) executeWithStore(cfg *config.Config, store storage.Store) error {
	age := cfg.Runs.StaleAfter
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
		}
		age = d
	}
	if age <= 0 {
		return fmt.Errorf("stale age must be positive")
	}

	coord := newCoordinator(cfg, store, nil, nil)
	defer coord.Close()

	n, err := coord.ReconcileOlderThan(context.Background(), age)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"reconciled": n,
			"olderThan":  age.String(),
		})
	}
	fmt.Printf("Marked %d abandoned %s failed (no heartbeat for %s)\n", n, plural(n, "run", "runs"), formatAge(age))
	return nil
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatAge formats a duration into a human-readable string like "2 hours".
func formatAge(d time.Duration) string {
	if days := int64(d.Hours() / 24); days > 0 {
		return fmt.Sprintf("%d %s", days, plural(days, "day", "days"))
	}
	if hours := int64(d.Hours()); hours > 0 {
		return fmt.Sprintf("%d %s", hours, plural(hours, "hour", "hours"))
	}
	return d.String()
}
