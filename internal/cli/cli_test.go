package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseOnly parses args without running the matched command.
func parseOnly(t *testing.T, args ...string) (*GlobalFlags, *commands, goflags.Commander) {
	t.Helper()
	parser, globals, cmds := buildParser("test")
	var matched goflags.Commander
	parser.CommandHandler = func(cmd goflags.Commander, _ []string) error {
		matched = cmd
		return nil
	}
	_, err := parser.ParseArgs(args)
	require.NoError(t, err)
	return globals, cmds, matched
}

func TestVersionFlag(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := RunWithArgs("0.1.0-test", []string{"--version"})

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	assert.NoError(t, err)
	assert.Contains(t, output, "cunyserve 0.1.0-test")
}

func TestVersionOutputFormat(t *testing.T) {
	output := captureOutput(t, func() {
		_ = RunWithArgs("1.2.3", []string{"--version"})
	})
	assert.Equal(t, "cunyserve 1.2.3", strings.TrimSpace(output))
}

func TestAllSubcommandsExist(t *testing.T) {
	expected := []string{
		"serve", "scrape", "status", "review", "show", "approve", "reject",
		"approve-all", "add", "history", "reconcile", "normalize",
	}
	parser, _, _ := buildParser("test")

	for _, name := range expected {
		cmd := parser.Find(name)
		assert.NotNil(t, cmd, "subcommand %q should exist", name)
	}
}

func TestSubcommandDispatch(t *testing.T) {
	_, cmds, matched := parseOnly(t, "status")
	assert.Same(t, cmds.Status, matched)

	_, cmds, matched = parseOnly(t, "approve-all", "--force")
	assert.Same(t, cmds.ApproveAll, matched)
	assert.True(t, cmds.ApproveAll.Force)
}

func TestUnknownSubcommandFails(t *testing.T) {
	parser, _, _ := buildParser("test")
	parser.CommandHandler = func(goflags.Commander, []string) error { return nil }
	_, err := parser.ParseArgs([]string{"nonexistent"})
	require.Error(t, err)
}

func TestHelpFlagDoesNotError(t *testing.T) {
	err := RunWithArgs("test", []string{"--help"})
	assert.NoError(t, err)
}

func TestGlobalFlags(t *testing.T) {
	globals, _, _ := parseOnly(t, "--json", "--verbose", "--config", "/tmp/test.yaml", "status")
	assert.True(t, globals.JSON)
	assert.True(t, globals.Verbose)
	assert.Equal(t, "/tmp/test.yaml", globals.Config)
}

func TestReviewFlagsDefaults(t *testing.T) {
	_, cmds, _ := parseOnly(t, "review")
	assert.Equal(t, "unverified", cmds.Review.Status)
	assert.Equal(t, 20, cmds.Review.Limit)
	assert.Equal(t, 0, cmds.Review.Offset)
}

func TestServeFlags(t *testing.T) {
	_, cmds, _ := parseOnly(t, "serve", "--port", "9999", "--no-schedule")
	assert.Equal(t, 9999, cmds.Serve.Port)
	assert.True(t, cmds.Serve.NoSchedule)
}

func TestScrapeSourceFlagRepeats(t *testing.T) {
	_, cmds, _ := parseOnly(t, "scrape", "--source", "cuny-events", "--source", "nyc-service")
	assert.Equal(t, []string{"cuny-events", "nyc-service"}, cmds.Scrape.Source)
}

func TestShowFlags(t *testing.T) {
	_, cmds, _ := parseOnly(t, "show", "--id", "abc", "--format", "url")
	assert.Equal(t, "abc", cmds.Show.ID)
	assert.Equal(t, "url", cmds.Show.Format)
}

func TestAddFlags(t *testing.T) {
	_, cmds, _ := parseOnly(t, "add", "--title", "Park Cleanup", "--date", "August 14, 2025",
		"--time", "10am - 12pm", "--url", "https://example.org/cleanup", "--college", "Hunter College")
	assert.Equal(t, "Park Cleanup", cmds.Add.Title)
	assert.Equal(t, "August 14, 2025", cmds.Add.Date)
	assert.Equal(t, "10am - 12pm", cmds.Add.Time)
	assert.Equal(t, "Hunter College", cmds.Add.College)
}

func TestReconcileOlderThanFlag(t *testing.T) {
	_, cmds, _ := parseOnly(t, "reconcile", "--older-than", "2h")
	assert.Equal(t, "2h", cmds.Reconcile.OlderThan)
}

func TestShowRequiresID(t *testing.T) {
	err := RunWithArgs("test", []string{"show"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")
}

func TestApproveAndRejectRequireID(t *testing.T) {
	err := RunWithArgs("test", []string{"approve"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")

	err = RunWithArgs("test", []string{"reject"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")
}

func TestAddRequiresFields(t *testing.T) {
	err := RunWithArgs("test", []string{"add", "--date", "August 14, 2025", "--url", "https://example.org"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--title is required")

	err = RunWithArgs("test", []string{"add", "--title", "T", "--url", "https://example.org"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--date is required")

	err = RunWithArgs("test", []string{"add", "--title", "T", "--date", "August 14, 2025"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url is required")

	err = RunWithArgs("test", []string{"add", "--title", "T", "--date", "August 14, 2025", "--url", "ftp://example.org/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestNormalizeRequiresDate(t *testing.T) {
	err := RunWithArgs("test", []string{"normalize", "--time", "6pm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--date is required")
}
