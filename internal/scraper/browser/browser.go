// Package browser drives headless Chrome for sources that only render
// listings client-side.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/simu18/CUNYServe/internal/config"
	"github.com/simu18/CUNYServe/internal/logging"
	"github.com/simu18/CUNYServe/internal/scraper"
)

// Browser launches a fresh Chrome per call so sources never share tabs.
type Browser struct {
	execPath  string
	headless  bool
	userAgent string
}

// New configures a Browser from the browser and http config sections.
func New(cfg config.BrowserConfig, userAgent string) *Browser {
	return &Browser{execPath: cfg.ExecPath, headless: cfg.Headless, userAgent: userAgent}
}

func (b *Browser) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logging.Debugf),
	)
	return tabCtx, func() {
		cancelTab()
		cancelAlloc()
	}
}

// Render navigates to pageURL, waits for waitSelector and returns the
// resulting DOM.
func (b *Browser) Render(ctx context.Context, pageURL, waitSelector string, timeout time.Duration) (*goquery.Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tabCtx, cancel := b.tab(ctx)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(pageURL)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
	}
	var html, location string
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Url = base
	if final, err := url.Parse(location); err == nil && final.Host != "" {
		doc.Url = final
	}
	return doc, nil
}

// Exchange loads a page and reports every finished network response to the
// observer until its context is cancelled.
type Exchange struct {
	Browser *Browser
	PageURL string
}

func (e *Exchange) Run(ctx context.Context, obs scraper.ResponseObserver) error {
	tabCtx, cancel := e.Browser.tab(ctx)
	defer cancel()

	tr := newTracker(1024)
	chromedp.ListenTarget(tabCtx, tr.handle)

	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(e.PageURL)); err != nil {
		return fmt.Errorf("navigate %s: %w", e.PageURL, err)
	}

	return tr.drain(ctx, obs, func(id network.RequestID) ([]byte, error) {
		var body []byte
		err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	})
}

// tracker pairs each request's method with its response and queues
// requests whose loading finished.
type tracker struct {
	mu        sync.Mutex
	methods   map[network.RequestID]string
	responses map[network.RequestID]*network.Response
	finished  chan network.RequestID
}

func newTracker(queue int) *tracker {
	return &tracker{
		methods:   make(map[network.RequestID]string),
		responses: make(map[network.RequestID]*network.Response),
		finished:  make(chan network.RequestID, queue),
	}
}

// handle is the target listener. It must not block.
func (t *tracker) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.mu.Lock()
		t.methods[ev.RequestID] = ev.Request.Method
		t.mu.Unlock()
	case *network.EventResponseReceived:
		t.mu.Lock()
		t.responses[ev.RequestID] = ev.Response
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		select {
		case t.finished <- ev.RequestID:
		default:
			logging.Debugf("browser: dropped response %s", ev.RequestID)
		}
	}
}

func (t *tracker) take(id network.RequestID) (*network.Response, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	resp, method := t.responses[id], t.methods[id]
	delete(t.responses, id)
	delete(t.methods, id)
	return resp, method
}

// drain reports finished responses to obs until ctx ends. Requests that
// finished without a response, or whose body is gone, are skipped.
func (t *tracker) drain(ctx context.Context, obs scraper.ResponseObserver, body func(network.RequestID) ([]byte, error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-t.finished:
			resp, method := t.take(id)
			if resp == nil {
				continue
			}
			b, err := body(id)
			if err != nil {
				logging.Debugf("browser: body of %s unavailable: %v", resp.URL, err)
				continue
			}
			obs.Observe(scraper.ObservedResponse{
				URL:    resp.URL,
				Method: method,
				Status: int(resp.Status),
				Body:   b,
			})
		}
	}
}
