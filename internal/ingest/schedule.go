package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ScheduledBy is the actor recorded for runs started by the daily schedule.
const ScheduledBy = "scheduler"

// NextDaily returns the first hh:mm in loc strictly after now.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// ParseDailyAt parses an "HH:MM" schedule.
func ParseDailyAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("daily time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// RunDaily starts a background run every day at dailyAt in loc until ctx
// ends. A trigger that finds a run in progress is skipped.
func (c *Coordinator) RunDaily(ctx context.Context, dailyAt string, loc *time.Location) error {
	hour, minute, err := ParseDailyAt(dailyAt)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	for {
		next := NextDaily(c.now(), hour, minute, loc)
		log.Printf("scheduler: next ingestion run at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		id, err := c.Start(ctx, ScheduledBy)
		switch {
		case errors.Is(err, ErrRunInProgress):
			log.Printf("scheduler: skipping, %v", err)
		case err != nil:
			log.Printf("scheduler: start run: %v", err)
		default:
			log.Printf("scheduler: started run %s", id)
		}
	}
}
