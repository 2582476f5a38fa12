// Package ingest runs the source adapters, writes their candidates to the
// staging store and keeps the run history.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simu18/CUNYServe/internal/metrics"
	"github.com/simu18/CUNYServe/internal/scraper"
	"github.com/simu18/CUNYServe/internal/storage"
)

var (
	// ErrRunInProgress is returned when another run holds the lease.
	ErrRunInProgress = errors.New("an ingestion run is already in progress")
	// ErrClosed is returned by Start once Close has begun.
	ErrClosed = errors.New("ingestion coordinator is closed")
)

// finishTimeout bounds the terminal run write after the run context ends.
const finishTimeout = 10 * time.Second

// Options tune lease handling. Zero values fall back to sane defaults.
type Options struct {
	Heartbeat  time.Duration
	StaleAfter time.Duration
	Holder     string
	Metrics    *metrics.Metrics
}

// Coordinator fans out to every source and persists the merged result.
type Coordinator struct {
	store     storage.Store
	sources   []scraper.Source
	metrics   *metrics.Metrics
	holder    string
	heartbeat time.Duration
	stale     time.Duration
	now       func() time.Time

	root   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Coordinator over store and sources.
func New(store storage.Store, sources []scraper.Source, opts Options) *Coordinator {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.StaleAfter <= opts.Heartbeat {
		opts.StaleAfter = 4 * opts.Heartbeat
	}
	if opts.Holder == "" {
		host, _ := os.Hostname()
		opts.Holder = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	root, stop := context.WithCancel(context.Background())
	return &Coordinator{
		store:     store,
		sources:   sources,
		metrics:   opts.Metrics,
		holder:    opts.Holder,
		heartbeat: opts.Heartbeat,
		stale:     opts.StaleAfter,
		now:       time.Now,
		root:      root,
		stop:      stop,
	}
}

// RunAll fetches every source concurrently, then upserts each source's
// candidates sequentially. A failing source contributes zero events.
// Uniqueness conflicts and invalid candidates are counted as failed; any
// other store error aborts the run.
func (c *Coordinator) RunAll(ctx context.Context) (map[string]storage.SourceStats, error) {
	results := make([]scraper.Result, len(c.sources))
	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src scraper.Source) {
			defer wg.Done()
			results[i] = scraper.Collect(ctx, src)
		}(i, src)
	}
	wg.Wait()

	stats := make(map[string]storage.SourceStats, len(results))
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	for _, res := range results {
		c.metrics.ObserveFetch(res.Source, res.Duration, res.Err != nil)
		s, err := c.persist(ctx, res)
		stats[res.Source] = s
		if err != nil {
			return stats, err
		}
		log.Printf("ingest: %s new=%d updated=%d unchanged=%d failed=%d",
			res.Source, s.New, s.Updated, s.Unchanged, s.Failed)
	}
	return stats, nil
}

func (c *Coordinator) persist(ctx context.Context, res scraper.Result) (storage.SourceStats, error) {
	var s storage.SourceStats
	for _, ev := range res.Events {
		up, err := c.store.UpsertStaging(ctx, ev)
		switch {
		case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrInvalid):
			s.Failed++
			c.metrics.ObserveRecord(res.Source, "failed")
			log.Printf("ingest: %s: skipping %q: %v", res.Source, ev.SourceKey(), err)
			continue
		case err != nil:
			return s, fmt.Errorf("%s: upsert %q: %w", res.Source, ev.SourceKey(), err)
		}
		switch up.Outcome {
		case storage.OutcomeNew:
			s.New++
		case storage.OutcomeUpdated:
			s.Updated++
		default:
			s.Unchanged++
		}
		c.metrics.ObserveRecord(res.Source, up.Outcome.String())
	}
	return s, nil
}

// Start takes the run lease, records a running run and continues it in the
// background. The returned run ID is valid as soon as Start returns.
func (c *Coordinator) Start(ctx context.Context, triggeredBy string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	run, err := c.begin(ctx, triggeredBy)
	if err != nil {
		return "", err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(c.root, run)
	}()
	return run.ID, nil
}

// RunSync performs a whole run in the caller's goroutine and returns the
// finished run record.
func (c *Coordinator) RunSync(ctx context.Context, triggeredBy string) (*storage.Run, error) {
	run, err := c.begin(ctx, triggeredBy)
	if err != nil {
		return nil, err
	}
	c.execute(ctx, run)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	return c.store.GetRun(fctx, run.ID)
}

func (c *Coordinator) begin(ctx context.Context, triggeredBy string) (*storage.Run, error) {
	now := c.now()
	run := &storage.Run{
		ID:          uuid.NewString(),
		TriggeredBy: triggeredBy,
		Status:      storage.RunRunning,
		StartTime:   now,
	}
	ok, err := c.store.AcquireLease(ctx, storage.Lease{
		RunID:       run.ID,
		Holder:      c.holder,
		AcquiredAt:  now,
		HeartbeatAt: now,
	}, now.Add(-c.stale))
	if err != nil {
		return nil, fmt.Errorf("acquire run lease: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	if err := c.store.BeginRun(ctx, run); err != nil {
		if rerr := c.store.ReleaseLease(context.WithoutCancel(ctx), run.ID); rerr != nil {
			log.Printf("ingest: release lease after failed begin: %v", rerr)
		}
		return nil, fmt.Errorf("record run start: %w", err)
	}
	c.metrics.RunStarted()
	log.Printf("ingest: run %s started by %s", run.ID, triggeredBy)
	return run, nil
}

// execute runs every source and writes exactly one terminal record. Panics
// are recorded as a failed run.
func (c *Coordinator) execute(ctx context.Context, run *storage.Run) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go c.keepAlive(hbCtx, run.ID)

	var (
		stats map[string]storage.SourceStats
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				log.Printf("ingest: run %s panicked: %v\n%s", run.ID, r, debug.Stack())
			}
		}()
		stats, err = c.RunAll(ctx)
	}()
	stopHeartbeat()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	end := c.now()
	status := storage.RunCompleted
	if err != nil {
		status = storage.RunFailed
		if ferr := c.store.FailRun(fctx, run.ID, stats, err.Error(), end); ferr != nil {
			log.Printf("ingest: record failure of run %s: %v", run.ID, ferr)
		}
		log.Printf("ingest: run %s failed: %v", run.ID, err)
	} else {
		if cerr := c.store.CompleteRun(fctx, run.ID, stats, end); cerr != nil {
			log.Printf("ingest: record completion of run %s: %v", run.ID, cerr)
		}
		log.Printf("ingest: run %s completed in %s", run.ID, end.Sub(run.StartTime).Round(time.Millisecond))
	}
	if rerr := c.store.ReleaseLease(fctx, run.ID); rerr != nil {
		log.Printf("ingest: release lease of run %s: %v", run.ID, rerr)
	}
	c.metrics.RunFinished(string(status), end.Sub(run.StartTime))
}

func (c *Coordinator) keepAlive(ctx context.Context, runID string) {
	t := time.NewTicker(c.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.store.HeartbeatLease(ctx, runID, c.now()); err != nil && ctx.Err() == nil {
				log.Printf("ingest: heartbeat for run %s: %v", runID, err)
			}
		}
	}
}

// Reconcile fails runs left running by a process that stopped refreshing
// its lease, and returns how many were closed.
func (c *Coordinator) Reconcile(ctx context.Context) (int64, error) {
	return c.ReconcileOlderThan(ctx, c.stale)
}

// ReconcileOlderThan is Reconcile with an explicit staleness threshold.
func (c *Coordinator) ReconcileOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	now := c.now()
	cutoff := now.Add(-age)
	msg := fmt.Sprintf("abandoned: no heartbeat since %s", cutoff.UTC().Format(time.RFC3339))
	n, err := c.store.ReconcileStaleRuns(ctx, cutoff, msg, now)
	if err != nil {
		return 0, fmt.Errorf("reconcile stale runs: %w", err)
	}
	if n > 0 {
		log.Printf("ingest: marked %d abandoned runs failed", n)
	}
	return n, nil
}

// Close cancels background runs and waits for their terminal writes.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

// Wait blocks until background runs started so far have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
