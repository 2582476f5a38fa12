package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simu18/CUNYServe/internal/api"
	"github.com/simu18/CUNYServe/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	s, err := openSession(c.globals)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.globals == nil || !c.globals.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	coord := newCoordinator(cfg, s.store, buildSources(cfg), m)
	// The scheduler must stop before Close waits on in-flight runs.
	var schedDone chan struct{}
	defer func() {
		stop()
		if schedDone != nil {
			<-schedDone
		}
		coord.Close()
	}()

	if n, err := coord.Reconcile(ctx); err != nil {
		return err
	} else if n > 0 {
		log.Printf("serve: failed %d runs abandoned by a previous process", n)
	}

	if len(cfg.Server.AdminTokens) == 0 {
		log.Printf("serve: no admin tokens configured; admin routes will reject every request")
	}

	schedLoc, err := time.LoadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return fmt.Errorf("schedule.time_zone: %w", err)
	}

	h := &api.Handler{
		Store:        s.store,
		Ingest:       coord,
		Gate:         newGate(cfg, s.store, m),
		HistoryLimit: cfg.Runs.HistoryLimit,
	}
	srv := api.NewServer(cfg.Server, api.NewRouter(h, cfg.Server.AdminTokens, m))

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serve: cunyserve %s listening on %s", c.version, srv.Addr())
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.Schedule.Enabled && !c.NoSchedule {
		schedDone = make(chan struct{})
		go func() {
			defer close(schedDone)
			if err := coord.RunDaily(ctx, cfg.Schedule.DailyAt, schedLoc); err != nil {
				log.Printf("serve: scheduler stopped: %v", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Printf("serve: shutting down")
	case serveErr = <-errCh:
	}
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("serve: http shutdown: %v", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
