package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

type fakeBatches struct {
	mu       sync.Mutex
	active   bool
	ticks    []time.Time
	tickErr  error
	onActive func()
}

func (f *fakeBatches) TickBatchProgress(_ context.Context, now time.Time) ([]models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, now)
	return nil, f.tickErr
}

func (f *fakeBatches) HasActive(context.Context) (bool, error) {
	f.mu.Lock()
	hook := f.onActive
	active := f.active
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return active, nil
}

func (f *fakeBatches) setActive(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = v
}

func newTestScheduler(b BatchTicker) *Scheduler {
	s := NewScheduler(b, time.Minute, time.UTC, nil)
	s.now = func() time.Time { return time.Date(2025, 5, 20, 7, 0, 0, 0, time.UTC) }
	return s
}

func TestStartWithoutActiveBatchDoesNotTick(t *testing.T) {
	s := newTestScheduler(&fakeBatches{})
	s.Start(context.Background())
	defer s.Stop()

	assert.False(t, s.Ticking())
	assert.Empty(t, s.cron.Entries())
}

func TestTickRunsWhileActiveAndStopsAfter(t *testing.T) {
	batches := &fakeBatches{active: true}
	s := newTestScheduler(batches)
	s.Start(context.Background())
	defer s.Stop()

	require.True(t, s.Ticking())
	require.Len(t, s.cron.Entries(), 1)

	s.tick()
	assert.True(t, s.Ticking())
	assert.Len(t, batches.ticks, 1)

	batches.setActive(false)
	s.tick()
	assert.False(t, s.Ticking())
	assert.Empty(t, s.cron.Entries(), "no timer left running")

	s.Wake()
	s.Wake()
	assert.Len(t, s.cron.Entries(), 1)
}

func TestActivationDuringTickKeepsSchedule(t *testing.T) {
	batches := &fakeBatches{}
	s := newTestScheduler(batches)
	s.Wake()

	// A batch starts between the tick and the removal.
	batches.onActive = s.Wake
	s.tick()
	assert.True(t, s.Ticking())
}

func TestTickErrorKeepsSchedule(t *testing.T) {
	batches := &fakeBatches{tickErr: errors.New("store down")}
	s := newTestScheduler(batches)
	s.Wake()
	s.tick()
	assert.True(t, s.Ticking())
}
