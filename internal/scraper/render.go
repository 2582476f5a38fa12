package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Renderer loads a page and returns its DOM once waitSelector matches.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string, timeout time.Duration) (*goquery.Document, error)
}

// HTTPRenderer renders server-side HTML by fetching it directly. It
// re-fetches until the selector appears or the wait times out.
type HTTPRenderer struct {
	Fetcher      *Fetcher
	PollInterval time.Duration
}

// NewHTTPRenderer returns an HTTPRenderer polling every two seconds.
func NewHTTPRenderer(f *Fetcher) *HTTPRenderer {
	return &HTTPRenderer{Fetcher: f, PollInterval: 2 * time.Second}
}

func (r *HTTPRenderer) Render(ctx context.Context, pageURL, waitSelector string, timeout time.Duration) (*goquery.Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for {
		resp, err := r.Fetcher.Get(ctx, pageURL)
		if err == nil {
			doc, perr := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
			if perr != nil {
				return nil, fmt.Errorf("parse html: %w", perr)
			}
			doc.Url = base
			if final, uerr := url.Parse(resp.URL); uerr == nil {
				doc.Url = final
			}
			if waitSelector == "" || doc.Find(waitSelector).Length() > 0 {
				return doc, nil
			}
			lastErr = fmt.Errorf("selector %q not present", waitSelector)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %q on %s: %w", waitSelector, pageURL, lastErr)
		case <-time.After(r.PollInterval):
		}
	}
}
