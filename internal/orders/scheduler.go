package orders

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Locker hands out a lease so that only one worker sweeps at a time. Correctness never
// depends on it; it only saves duplicate reads.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// Scheduler runs a sweep every Interval until its context ends.
type Scheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Locker   Locker
	LockKey  string
	Log      *zap.Logger
}

func (s *Scheduler) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	log.Info("progression scheduler started", zap.Duration("interval", interval))
	for {
		s.tick(ctx, log, interval)
		select {
		case <-ctx.Done():
			log.Info("progression scheduler stopped")
			return nil
		case <-t.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, log *zap.Logger, interval time.Duration) {
	if s.Locker != nil {
		release, ok, err := s.Locker.TryLock(ctx, s.LockKey, interval)
		if err != nil {
			// lock store down: sweep anyway, the conditional writes keep it safe
			log.Warn("sweep lock unavailable", zap.Error(err))
		} else if !ok {
			log.Debug("sweep skipped: another worker holds the lock")
			return
		} else {
			defer release()
		}
	}
	if _, err := s.Sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
		log.Error("sweep failed", zap.Error(err))
	}
}
