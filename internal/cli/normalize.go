package cli

import (
	"fmt"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/datetime"
)

// Execute implements the go-flags Commander interface for NormalizeCommand.
// It reads the config only for the time zone and never opens the store.
func (c *NormalizeCommand) Execute(args []string) error {
	if c.Date == "" {
		return fmt.Errorf("--date is required for normalize command")
	}

	loc, err := c.location()
	if err != nil {
		return err
	}
	return c.executeIn(loc)
}

func (c *NormalizeCommand) location() (*time.Location, error) {
	if c.TimeZone != "" {
		loc, err := time.LoadLocation(c.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid --tz value %q: %w", c.TimeZone, err)
		}
		return loc, nil
	}

	var flagPath string
	if c.globals != nil {
		flagPath = c.globals.Config
	}
	path, err := config.ResolvePath(flagPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrCreateAt(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg.Location(), nil
}

type normalizeJSON struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	Success        bool   `json:"success"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	StartDefaulted bool   `json:"startDefaulted"`
	EndDefaulted   bool   `json:"endDefaulted"`
	Overnight      bool   `json:"overnight"`
}

func (c *NormalizeCommand) executeIn(loc *time.Location) error {
	res := datetime.Normalize(c.Date, c.Time, loc)

	if c.globals != nil && c.globals.JSON {
		out := normalizeJSON{
			Date:           c.Date,
			Time:           c.Time,
			Success:        res.Success,
			StartDefaulted: res.StartDefaulted,
			EndDefaulted:   res.EndDefaulted,
			Overnight:      res.Overnight,
		}
		if res.Success {
			out.Start = res.Start.Format(time.RFC3339)
			out.End = res.End.Format(time.RFC3339)
		}
		return printJSON(out)
	}

	if !res.Success {
		fmt.Printf("Could not parse date %q\n", c.Date)
		return nil
	}
	fmt.Printf("Start: %s", res.Start.Format(time.RFC3339))
	if res.StartDefaulted {
		fmt.Print(" (default)")
	}
	fmt.Println()
	fmt.Printf("End:   %s", res.End.Format(time.RFC3339))
	switch {
	case res.EndDefaulted:
		fmt.Print(" (default)")
	case res.Overnight:
		fmt.Print(" (next day)")
	}
	fmt.Println()
	return nil
}
