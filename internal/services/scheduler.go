package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the part of Pipeline the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context, opts Options) ([]ScanReport, error)
}

// Scheduler polls every user's mailbox on a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	opts     Options
	log      *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewScheduler(sweeper Sweeper, interval time.Duration, opts Options, log *zap.Logger) *Scheduler {
	return &Scheduler{sweeper: sweeper, interval: interval, opts: opts, log: log.Named("scheduler")}
}

// Start sweeps once right away and then on every tick until ctx is done.
// A tick that arrives while a sweep is still running is skipped.
// Start returns after the in-flight sweep has finished.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous sweep still running, skipping this tick")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.sweeper.Sweep(ctx, s.opts); err != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
	}()
	return true
}
