package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDaily(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	before := time.Date(2025, 8, 14, 2, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 8, 14, 3, 0, 0, 0, loc), NextDaily(before, 3, 0, loc))

	at := time.Date(2025, 8, 14, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 8, 15, 3, 0, 0, 0, loc), NextDaily(at, 3, 0, loc))

	// Evaluated in the schedule's zone, not the input's.
	utc := time.Date(2025, 8, 15, 6, 0, 0, 0, time.UTC) // 02:00 in New York
	assert.Equal(t, time.Date(2025, 8, 15, 3, 0, 0, 0, loc), NextDaily(utc, 3, 0, loc))

	eoy := time.Date(2025, 12, 31, 23, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 1, 1, 3, 0, 0, 0, loc), NextDaily(eoy, 3, 0, loc))
}

func TestParseDailyAt(t *testing.T) {
	h, m, err := ParseDailyAt("03:30")
	require.NoError(t, err)
	assert.Equal(t, 3, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseDailyAt("3pm")
	assert.Error(t, err)
}

func TestRunDailyStopsWithContext(t *testing.T) {
	c := newCoordinator(t, openStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunDaily(ctx, "03:00", time.UTC) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunDaily did not return after cancel")
	}

	assert.Error(t, c.RunDaily(context.Background(), "nope", time.UTC))
}
