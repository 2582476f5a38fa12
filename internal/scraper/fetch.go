package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/simu18/CUNYServe/internal/config"
)

// maxBody caps how much of a response is read.
const maxBody = 16 << 20

// NewHTTPClient returns a client with bounded dial and handshake times.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err so Retry gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Retry runs fn up to attempts times with exponential backoff capped at max.
func Retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		var p permanentError
		if errors.As(err, &p) || i == attempts-1 {
			return err
		}
		if d < max {
			d *= 2
			if d > max {
				d = max
			}
		}
	}
	return errors.New("retry: exhausted")
}

// Request describes one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	URL    string
	Method string
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher issues rate-limited, retried HTTP requests.
type Fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewFetcher builds a Fetcher from the http config section.
func NewFetcher(cfg config.HTTPConfig) *Fetcher {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	return &Fetcher{
		client:     NewHTTPClient(cfg.Timeout),
		limiter:    rate.NewLimiter(limit, burst),
		userAgent:  cfg.UserAgent,
		attempts:   attempts,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
	}
}

// Get fetches url with GET.
func (f *Fetcher) Get(ctx context.Context, url string) (*Response, error) {
	return f.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

// Do performs req, retrying transport errors, 429 and 5xx responses.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var out *Response
	err := Retry(ctx, f.attempts, f.backoff, f.maxBackoff, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		resp, err := f.once(ctx, req)
		if err != nil {
			return err
		}
		switch {
		case resp.Status == http.StatusTooManyRequests || resp.Status >= 500:
			return fmt.Errorf("%s %s: status %d", req.Method, req.URL, resp.Status)
		case resp.Status >= 400:
			return Permanent(fmt.Errorf("%s %s: status %d", req.Method, req.URL, resp.Status))
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) once(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if f.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		URL:    resp.Request.URL.String(),
		Method: req.Method,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
