package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNoResponse is returned when the awaited response never arrives.
var ErrNoResponse = errors.New("awaited response not observed")

// ObservedResponse is one network response seen during an exchange.
type ObservedResponse struct {
	URL    string
	Method string
	Status int
	Body   []byte
}

// ResponseObserver receives every response an Exchange sees.
type ResponseObserver interface {
	Observe(resp ObservedResponse)
}

// Exchange drives whatever produces the awaited response (a page load or
// a direct call) and reports each response to obs. It returns when the
// work is done or ctx is cancelled.
type Exchange interface {
	Run(ctx context.Context, obs ResponseObserver) error
}

// Capture is a ResponseObserver that keeps bodies of responses matching one
// endpoint and method, and signals Done on the first match.
type Capture struct {
	endpoint string
	method   string

	mu     sync.Mutex
	bodies [][]byte
	done   chan struct{}
	once   sync.Once
}

// NewCapture awaits method requests to endpoint. Query strings and
// fragments are ignored when matching.
func NewCapture(endpoint, method string) *Capture {
	return &Capture{
		endpoint: normalizeEndpoint(endpoint),
		method:   strings.ToUpper(method),
		done:     make(chan struct{}),
	}
}

func (c *Capture) Observe(resp ObservedResponse) {
	if !strings.EqualFold(resp.Method, c.method) || normalizeEndpoint(resp.URL) != c.endpoint {
		return
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return
	}
	c.mu.Lock()
	c.bodies = append(c.bodies, bytes.Clone(resp.Body))
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Done is closed once a matching response has been observed.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Bodies returns the matching bodies observed so far.
func (c *Capture) Bodies() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.bodies))
	copy(out, c.bodies)
	return out
}

// Await runs ex against c until the first matching response, the exchange
// failing, or timeout. The exchange is cancelled before Await returns.
func (c *Capture) Await(ctx context.Context, ex Exchange, timeout time.Duration) ([][]byte, error) {
	exCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ex.Run(exCtx, c) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return c.Bodies(), nil
	case err := <-runErr:
		// A synchronous exchange observes before returning.
		select {
		case <-c.done:
			return c.Bodies(), nil
		default:
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrNoResponse
	case <-timer.C:
		return nil, ErrNoResponse
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func normalizeEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// DirectExchange issues the background request a page would have made and
// reports the response.
type DirectExchange struct {
	Fetcher *Fetcher
	Request Request
}

func (d *DirectExchange) Run(ctx context.Context, obs ResponseObserver) error {
	req := d.Request
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.Fetcher.Do(ctx, req)
	if err != nil {
		return err
	}
	obs.Observe(ObservedResponse{URL: resp.URL, Method: resp.Method, Status: resp.Status, Body: resp.Body})
	return nil
}
