package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/simu18/CUNYServe/internal/moderation"
	"github.com/simu18/CUNYServe/internal/storage"
)

// Execute implements the go-flags Commander interface for ApproveCommand.
func (c *ApproveCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for approve command")
	}
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return decide(c.globals, newGate(s.cfg, s.store, nil), c.ID, storage.StatusApproved)
}

// Execute implements the go-flags Commander interface for RejectCommand.
func (c *RejectCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for reject command")
	}
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return decide(c.globals, newGate(s.cfg, s.store, nil), c.ID, storage.StatusRejected)
}

type decisionJSON struct {
	Record      *storage.StagingRecord `json:"record"`
	Published   bool                   `json:"published"`
	PublicEvent *storage.PublicEvent   `json:"publicEvent,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// decide applies one moderation decision and reports it. An approval that
// could not be published is reported and returned as an error so scripts
// see a non-zero exit.
func decide(globals *GlobalFlags, gate *moderation.Gate, id string, status storage.Status) error {
	d, err := gate.SetStatus(context.Background(), id, status)
	if err != nil {
		return fmt.Errorf("%s %s: %w", status, id, err)
	}

	if globals != nil && globals.JSON {
		if err := printJSON(decisionJSON{
			Record:      d.Record,
			Published:   d.Published,
			PublicEvent: d.PublicEvent,
			Reason:      d.Reason,
		}); err != nil {
			return err
		}
	} else {
		fmt.Printf("%s: %s (%s)\n", d.Record.Status, d.Record.Title, d.Record.ID)
		if d.Published {
			fmt.Printf("  Published as %s, starting %s\n", d.PublicEvent.ID, d.PublicEvent.Start.Format("2006-01-02 15:04 MST"))
		}
	}

	if status == storage.StatusApproved && !d.Published {
		return fmt.Errorf("event approved, but could not be published: %s", d.Reason)
	}
	return nil
}

// Execute implements the go-flags Commander interface for ApproveAllCommand.
func (c *ApproveAllCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	return c.executeWithGate(newGate(s.cfg, s.store, nil), s.store)
}

// executeWithGate runs the bulk approval against a provided gate (for testing).
func (c *ApproveAllCommand) executeWithGate(gate *moderation.Gate, store storage.Store) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	pending := stats.Staging[storage.StatusUnverified]
	if pending == 0 && !c.Republish {
		fmt.Println("No unverified events.")
		return nil
	}

	if !c.Force {
		fmt.Printf("This will approve %s unverified events and publish every one whose date parses.\n", formatNumber(pending))
		fmt.Print(`Type "APPROVE" to confirm: `)

		in := c.in
		if in == nil {
			in = os.Stdin
		}
		if err := confirm(in, "APPROVE"); err != nil {
			return err
		}
	}

	res, err := gate.ApproveAll(ctx)
	if err != nil {
		return fmt.Errorf("approve all: %w", err)
	}
	if c.Republish {
		retried, err := gate.Republish(ctx)
		if err != nil {
			return fmt.Errorf("republish: %w", err)
		}
		res.Published += retried.Published
		res.Unpublished = mergeUnpublished(res.Unpublished, retried.Unpublished)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(struct {
			Modified    int                      `json:"modifiedCount"`
			Published   int                      `json:"publishedCount"`
			Unpublished []moderation.Unpublished `json:"unpublished"`
		}{res.Modified, res.Published, res.Unpublished})
	}

	fmt.Printf("%d events have been approved, %d published.\n", res.Modified, res.Published)
	if len(res.Unpublished) > 0 {
		fmt.Println()
		fmt.Println("Approved but not published:")
		for _, u := range res.Unpublished {
			fmt.Printf("  %s  %s (%s)\n", u.ID, u.Title, u.Reason)
		}
	}
	return nil
}

func confirm(in io.Reader, want string) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != want {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

// mergeUnpublished appends b to a, skipping IDs already listed.
func mergeUnpublished(a, b []moderation.Unpublished) []moderation.Unpublished {
	seen := make(map[string]bool, len(a))
	for _, u := range a {
		seen[u.ID] = true
	}
	for _, u := range b {
		if !seen[u.ID] {
			a = append(a, u)
		}
	}
	return a
}
