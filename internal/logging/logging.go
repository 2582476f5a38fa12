// Package logging configures the standard logger from the logging section
// of the config file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/simu18/CUNYServe/internal/config"
)

var debug atomic.Bool

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the standard logger at stderr, plus cfg.File when set, and
// enables debug output for level "debug". The returned closer releases the
// log file.
func Setup(cfg config.LoggingConfig, verbose bool) (io.Closer, error) {
	SetDebug(verbose || strings.EqualFold(cfg.Level, "debug"))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	path, err := config.ExpandPath(cfg.File)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// SetDebug toggles Debugf output.
func SetDebug(on bool) {
	debug.Store(on)
}

// Debugf logs only when debug output is enabled.
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf(format, args...)
	}
}
