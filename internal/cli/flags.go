package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand runs the HTTP API and the daily scheduler.
type ServeCommand struct {
	Host       string `long:"host" description:"Override listen host"`
	Port       int    `long:"port" description:"Override listen port"`
	NoSchedule bool   `long:"no-schedule" description:"Disable the daily ingestion run"`

	globals *GlobalFlags
	version string
}

// ScrapeCommand runs one ingestion synchronously.
type ScrapeCommand struct {
	Source []string `long:"source" description:"Only run this source (repeatable)"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows staging counts, public events and the last run.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ReviewCommand lists staging records awaiting or past moderation.
type ReviewCommand struct {
	Status string `long:"status" description:"Filter by status: unverified | approved | rejected" default:"unverified"`
	Source string `long:"source" description:"Filter by source name"`
	Limit  int    `long:"limit" description:"Maximum results" default:"20"`
	Offset int    `long:"offset" description:"Skip first N results" default:"0"`

	globals *GlobalFlags
	version string
}

// ShowCommand prints one staging record and its public event.
type ShowCommand struct {
	ID     string `long:"id" description:"Staging record ID (required)"`
	Format string `long:"format" description:"Output format: text | url | date" default:"text"`

	globals *GlobalFlags
	version string
}

// ApproveCommand approves and publishes one staging record.
type ApproveCommand struct {
	ID string `long:"id" description:"Staging record ID (required)"`

	globals *GlobalFlags
	version string
}

// RejectCommand rejects one staging record.
type RejectCommand struct {
	ID string `long:"id" description:"Staging record ID (required)"`

	globals *GlobalFlags
	version string
}

// ApproveAllCommand approves every unverified record.
type ApproveAllCommand struct {
	Force     bool `long:"force" description:"Skip confirmation prompt"`
	Republish bool `long:"republish" description:"Also retry approved records that have no public event"`

	globals *GlobalFlags
	version string
	in      io.Reader // injectable for testing; nil means os.Stdin
}

// AddCommand stages a candidate by hand.
type AddCommand struct {
	Title       string `long:"title" description:"Event title (required)"`
	Date        string `long:"date" description:"Event date as listed, e.g. \"August 14, 2025\" (required)"`
	Time        string `long:"time" description:"Event time as listed, e.g. \"6pm - 8pm\""`
	URL         string `long:"url" description:"Event page URL (required)"`
	College     string `long:"college" description:"Hosting college or organization"`
	Description string `long:"description" description:"Event description"`

	globals *GlobalFlags
	version string
}

// HistoryCommand lists recent ingestion runs.
type HistoryCommand struct {
	Limit int `long:"limit" description:"Maximum runs (0 uses runs.history_limit)" default:"0"`

	globals *GlobalFlags
	version string
}

// ReconcileCommand fails running rows that stopped heartbeating.
type ReconcileCommand struct {
	OlderThan string `long:"older-than" description:"Treat runs without a heartbeat for this long as abandoned (e.g., 2h, 30m)"`

	globals *GlobalFlags
	version string
}

// NormalizeCommand shows how a date/time pair normalizes.
type NormalizeCommand struct {
	Date     string `long:"date" description:"Date text (required)"`
	Time     string `long:"time" description:"Time text"`
	TimeZone string `long:"tz" description:"Override moderation.time_zone"`

	globals *GlobalFlags
	version string
}
