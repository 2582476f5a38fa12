package config

import "time"

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:            "sqlite",
			SQLitePath:        "~/.config/cunyserve/cunyserve.db",
			SQLiteJournalMode: "wal",
			PostgresDSN:       "",
			PostgresMaxConns:  4,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         5000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			AdminTokens:  map[string]string{},
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			DailyAt:  "03:00",
			TimeZone: "America/New_York",
		},
		HTTP: HTTPConfig{
			UserAgent:     "Mozilla/5.0 (compatible; CUNYServeBot/1.0)",
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
			Burst:         2,
			MaxRetries:    3,
			Backoff:       500 * time.Millisecond,
			MaxBackoff:    5 * time.Second,
		},
		Browser: BrowserConfig{
			Enabled:  false,
			ExecPath: "",
			Headless: true,
		},
		Sources: SourcesConfig{
			CUNYEvents: ListingSourceConfig{
				Enabled:     true,
				URL:         "https://events.cuny.edu/",
				MaxPages:    10,
				WaitTimeout: 30 * time.Second,
			},
			Admissions: ListingSourceConfig{
				Enabled:     true,
				URL:         "https://www.cuny.edu/admissions/undergraduate/events/",
				MaxPages:    1,
				WaitTimeout: 60 * time.Second,
			},
			NYCService: NYCServiceConfig{
				Enabled:       true,
				PageURL:       "https://www.nycservice.org/calendar",
				APIURL:        "https://www.nycservice.org/search/getOpportunitiesCalendar",
				Method:        "POST",
				RequestBody:   "{}",
				SettleTimeout: 10 * time.Second,
			},
		},
		Moderation: ModerationConfig{
			TimeZone:        "America/New_York",
			DefaultLocation: "See Source",
		},
		Runs: RunsConfig{
			HistoryLimit: 10,
			StaleAfter:   2 * time.Hour,
			Heartbeat:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}
