package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

const tickTimeout = 30 * time.Second

// BatchTicker is the batch service surface driven by the scheduler.
type BatchTicker interface {
	TickBatchProgress(ctx context.Context, now time.Time) ([]models.Batch, error)
	HasActive(ctx context.Context) (bool, error)
}

// Scheduler runs the batch progress tick only while a batch is active.
type Scheduler struct {
	cron     *cron.Cron
	batches  BatchTicker
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	entry cron.EntryID
	wakes uint64
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(batches BatchTicker, interval time.Duration, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		batches:  batches,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start starts the cron engine and schedules the tick if a batch is already
// running.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler", zap.Duration("batch_tick_interval", s.interval))
	s.cron.Start()

	active, err := s.batches.HasActive(ctx)
	if err != nil {
		s.logger.Warn("could not check active batches, scheduling tick", zap.Error(err))
		active = true
	}
	if active {
		s.Wake()
	}
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Wake schedules the batch tick if it is not already scheduled. It is the
// activation hook of the batch service.
func (s *Scheduler) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakes++
	if s.entry != 0 {
		return
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick)
	if err != nil {
		s.logger.Error("failed to schedule batch tick", zap.Error(err))
		return
	}
	s.entry = id
	s.logger.Info("batch tick scheduled")
}

// Ticking reports whether the batch tick is scheduled.
func (s *Scheduler) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry != 0
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	s.mu.Lock()
	wakes := s.wakes
	s.mu.Unlock()

	updated, err := s.batches.TickBatchProgress(ctx, s.now())
	if err != nil {
		s.logger.Error("batch progress tick failed", zap.Error(err))
		return
	}
	if len(updated) > 0 {
		s.logger.Debug("batch progress updated", zap.Int("batches", len(updated)))
	}

	active, err := s.batches.HasActive(ctx)
	if err != nil {
		s.logger.Warn("could not check active batches", zap.Error(err))
		return
	}
	if !active {
		s.sleep(wakes)
	}
}

// sleep removes the tick unless a batch was activated since wakes was read.
func (s *Scheduler) sleep(wakes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 || s.wakes != wakes {
		return
	}
	s.cron.Remove(s.entry)
	s.entry = 0
	s.logger.Info("no active batch, batch tick removed")
}
