package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/ingest"
	"github.com/simu18/CUNYServe/internal/logging"
	"github.com/simu18/CUNYServe/internal/metrics"
	"github.com/simu18/CUNYServe/internal/moderation"
	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/scraper/browser"
	"github.com/simu18/CUNYServe/internal/storage"
)

// session bundles what every store-backed command needs.
type session struct {
	cfg     *config.Config
	store   storage.Store
	logFile io.Closer
}

// openSession resolves and loads the config, sets up logging, and opens
// the configured store with migrations applied.
func openSession(globals *GlobalFlags) (*session, error) {
	var flagPath string
	var verbose bool
	if globals != nil {
		flagPath = globals.Config
		verbose = globals.Verbose
	}

	path, err := config.ResolvePath(flagPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrCreateAt(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logFile, err := logging.Setup(cfg.Logging, verbose)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	store, err := storage.Open(context.Background(), cfg.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &session{cfg: cfg, store: store, logFile: logFile}, nil
}

func (s *session) Close() {
	s.store.Close()
	s.logFile.Close()
}

// buildSources wires the enabled sources to a headless browser when one is
// configured, or to plain HTTP otherwise.
func buildSources(cfg *config.Config) []scraper.Source {
	if cfg.Browser.Enabled {
		b := browser.New(cfg.Browser, cfg.HTTP.UserAgent)
		ex := &browser.Exchange{Browser: b, PageURL: cfg.Sources.NYCService.PageURL}
		return scraper.Build(cfg, b, ex)
	}
	f := scraper.NewFetcher(cfg.HTTP)
	return scraper.Build(cfg, scraper.NewHTTPRenderer(f), scraper.NewDirectCalendarExchange(f, cfg.Sources.NYCService))
}

// selectSources keeps only the named sources; no names keeps all of them.
func selectSources(all []scraper.Source, names []string) ([]scraper.Source, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]scraper.Source, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}
	out := make([]scraper.Source, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown or disabled source %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

func newCoordinator(cfg *config.Config, store storage.Store, sources []scraper.Source, m *metrics.Metrics) *ingest.Coordinator {
	return ingest.New(store, sources, ingest.Options{
		Heartbeat:  cfg.Runs.Heartbeat,
		StaleAfter: cfg.Runs.StaleAfter,
		Metrics:    m,
	})
}

func newGate(cfg *config.Config, store storage.Store, m *metrics.Metrics) *moderation.Gate {
	return moderation.New(store, cfg.Location(), cfg.Moderation.DefaultLocation, m)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "7d", "24h", "30m".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 's':
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, m, or s suffix)", s)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// formatTime prints t in loc, or "-" for the zero time.
func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04 MST")
}
