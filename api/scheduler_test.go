package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
)

func TestWarmupScheduler_RunNowComputesCurrentMonth(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "standard-month"))

	s := NewWarmupScheduler(h.Engine, "@hourly", nil)
	s.now = func() time.Time { return time.Date(2025, time.April, 20, 6, 0, 0, 0, time.UTC) }

	batch, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenarioMonth, batch.Period)
	assert.Len(t, batch.Results, 2)

	// The warmed entries are what the next read gets.
	r, err := h.Engine.ComputeCompensation(ctx, insAbebe, scenarioMonth)
	require.NoError(t, err)
	assert.Same(t, batch.Results[0], r)

	last, lastErr := s.LastRun()
	assert.False(t, last.IsZero())
	assert.NoError(t, lastErr)
}

func TestWarmupScheduler_RecomputesOnANewDay(t *testing.T) {
	// GIVEN: The month was warmed on Apr 20
	// WHEN: The job runs again on Apr 21 with no writes in between
	// THEN: Results are recomputed so absences of Apr 21 can appear

	today := time.Date(2025, time.April, 20, 6, 0, 0, 0, time.UTC)
	clock := func() time.Time { return today }
	h := setupTestHandler(t, compensation.WithClock(clock))
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "standard-month"))

	s := NewWarmupScheduler(h.Engine, "@daily", nil)
	s.now = clock

	first, err := s.RunNow(ctx)
	require.NoError(t, err)
	same, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Same(t, first.Results[0], same.Results[0])

	today = today.AddDate(0, 0, 1)
	next, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first.Results[0], next.Results[0])
}

func TestWarmupScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)

	s := NewWarmupScheduler(h.Engine, "15 * * * *", nil)
	assert.True(t, s.NextRun().IsZero())
	require.NoError(t, s.Start())
	assert.True(t, s.NextRun().After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestWarmupScheduler_RejectsBadSchedule(t *testing.T) {
	h := setupTestHandler(t)
	assert.Error(t, NewWarmupScheduler(h.Engine, "every now and then", nil).Start())
}
