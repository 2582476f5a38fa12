package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve      *ServeCommand
	Scrape     *ScrapeCommand
	Status     *StatusCommand
	Review     *ReviewCommand
	Show       *ShowCommand
	Approve    *ApproveCommand
	Reject     *RejectCommand
	ApproveAll *ApproveAllCommand
	Add        *AddCommand
	History    *HistoryCommand
	Reconcile  *ReconcileCommand
	Normalize  *NormalizeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "cunyserve"
	parser.LongDescription = "Collects volunteer and service events from CUNY and NYC listings, stages them for review, and publishes approved events."

	cmds := &commands{
		Serve:      &ServeCommand{globals: &globals, version: version},
		Scrape:     &ScrapeCommand{globals: &globals, version: version},
		Status:     &StatusCommand{globals: &globals, version: version},
		Review:     &ReviewCommand{globals: &globals, version: version},
		Show:       &ShowCommand{globals: &globals, version: version},
		Approve:    &ApproveCommand{globals: &globals, version: version},
		Reject:     &RejectCommand{globals: &globals, version: version},
		ApproveAll: &ApproveAllCommand{globals: &globals, version: version},
		Add:        &AddCommand{globals: &globals, version: version},
		History:    &HistoryCommand{globals: &globals, version: version},
		Reconcile:  &ReconcileCommand{globals: &globals, version: version},
		Normalize:  &NormalizeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Run the HTTP API and scheduler", "Serve the admin and public HTTP API and run ingestion daily until interrupted.", cmds.Serve)
	parser.AddCommand("scrape", "Run one ingestion now", "Fetch every enabled source, stage the results, and record the run.", cmds.Scrape)
	parser.AddCommand("status", "Show pipeline statistics", "Show staging counts by status, public events, and the last run.", cmds.Status)
	parser.AddCommand("review", "List staged events", "List staged events, newest import first, with optional filters.", cmds.Review)
	parser.AddCommand("show", "Print one staged event", "Print a staged event and, when published, its public event.", cmds.Show)
	parser.AddCommand("approve", "Approve and publish an event", "Approve a staged event and publish it to the public listing.", cmds.Approve)
	parser.AddCommand("reject", "Reject an event", "Reject a staged event.", cmds.Reject)
	parser.AddCommand("approve-all", "Approve every unverified event", "Approve every unverified event and publish each one whose date parses.", cmds.ApproveAll)
	parser.AddCommand("add", "Manually stage an event", "Stage an event by hand under the manual source.", cmds.Add)
	parser.AddCommand("history", "Show recent ingestion runs", "Show recent ingestion runs, newest first.", cmds.History)
	parser.AddCommand("reconcile", "Fail abandoned runs", "Mark running ingestion runs that stopped heartbeating as failed.", cmds.Reconcile)
	parser.AddCommand("normalize", "Show date/time normalization", "Show the start and end a listing's date and time text normalize to.", cmds.Normalize)

	return parser, &globals, cmds
}

// Run is the main entry point for the CUNYServe CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("cunyserve %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
