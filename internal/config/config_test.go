package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "~/.config/cunyserve/cunyserve.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, 4, cfg.Storage.PostgresMaxConns)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Empty(t, cfg.Server.AdminTokens)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, "03:00", cfg.Schedule.DailyAt)
	assert.Equal(t, "America/New_York", cfg.Schedule.TimeZone)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, 10, cfg.Sources.CUNYEvents.MaxPages)
	assert.Equal(t, "https://events.cuny.edu/", cfg.Sources.CUNYEvents.URL)
	assert.Equal(t, "https://www.cuny.edu/admissions/undergraduate/events/", cfg.Sources.Admissions.URL)
	assert.Equal(t, "POST", cfg.Sources.NYCService.Method)
	assert.Equal(t, "https://www.nycservice.org/search/getOpportunitiesCalendar", cfg.Sources.NYCService.APIURL)
	assert.Equal(t, "See Source", cfg.Moderation.DefaultLocation)
	assert.Equal(t, 10, cfg.Runs.HistoryLimit)
	assert.Equal(t, 2*time.Hour, cfg.Runs.StaleAfter)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
server:
  port: 9999
  admin_tokens:
    secret-token: admin@cuny.edu
schedule:
  daily_at: "05:30"
http:
  timeout: 5s
sources:
  cuny_events:
    max_pages: 3
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "admin@cuny.edu", cfg.Server.AdminTokens["secret-token"])
	assert.Equal(t, "05:30", cfg.Schedule.DailyAt)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.Sources.CUNYEvents.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "https://events.cuny.edu/", cfg.Sources.CUNYEvents.URL)
	assert.True(t, cfg.Sources.CUNYEvents.Enabled)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte(":::not valid yaml{{{"), 0644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load("/tmp/nonexistent_path_12345/config.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown driver":    "storage:\n  driver: mongo\n",
		"postgres no dsn":   "storage:\n  driver: postgres\n",
		"bad daily_at":      "schedule:\n  daily_at: \"25:00\"\n",
		"bad time zone":     "moderation:\n  time_zone: Mars/Olympus\n",
		"zero history size": "runs:\n  history_limit: 0\n",
		"zero max pages":    "sources:\n  cuny_events:\n    max_pages: 0\n",
		"negative pages":    "sources:\n  cuny_admissions:\n    max_pages: -1\n",
		"zero wait":         "sources:\n  cuny_events:\n    wait_timeout: 0s\n",
		"zero settle":       "sources:\n  nyc_service:\n    settle_timeout: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0644))
			_, err := Load(cfgPath)
			assert.Error(t, err)
		})
	}
}

func TestValidateSkipsDisabledSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources.NYCService.Enabled = false
	cfg.Sources.NYCService.SettleTimeout = 0
	cfg.Sources.Admissions.Enabled = false
	cfg.Sources.Admissions.MaxPages = 0
	assert.NoError(t, cfg.Validate())

	cfg.Sources.NYCService.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle_timeout")
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "deep", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)

	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)

	// Written file round-trips, durations included.
	cfg2, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Runs.StaleAfter, cfg2.Runs.StaleAfter)
	assert.Equal(t, cfg.Sources.NYCService.SettleTimeout, cfg2.Sources.NYCService.SettleTimeout)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte("runs:\n  history_limit: 25\n"), 0644))

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Runs.HistoryLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	p, err := ResolvePath("/etc/cunyserve.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/cunyserve.yaml", p)

	t.Setenv(EnvConfigPath, "/srv/cunyserve.yaml")
	p, err = ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/cunyserve.yaml", p)

	t.Setenv(EnvConfigPath, "")
	p, err = ResolvePath("")
	require.NoError(t, err)
	assert.NotContains(t, p, "~")
	assert.Contains(t, p, filepath.Join(".config", "cunyserve", "config.yaml"))
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "America/New_York", cfg.Location().String())

	cfg.Moderation.TimeZone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())
}
