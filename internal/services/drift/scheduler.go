package drift

import (
	"context"
	"errors"
	"sync"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/repository"
	"RevSight/pkg/logger"
)

// Checker is the drift operation the scheduler drives. Implemented by the
// drift usecase so scheduled checks share the audit trail with manual ones.
type Checker interface {
	CheckCurrent(ctx context.Context, window models.DriftWindow) (*models.DriftReport, error)
}

// DriftHandler reacts to a completed check, e.g. by enqueueing a retrain job.
type DriftHandler func(ctx context.Context, report *models.DriftReport) error

// Scheduler runs drift checks on a fixed interval. The clock is injected so
// tests drive RunOnce synchronously instead of waiting on timers.
type Scheduler struct {
	interval time.Duration
	lookback time.Duration
	checker  Checker
	onDrift  DriftHandler
	log      *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewScheduler(interval, lookback time.Duration, checker Checker, onDrift DriftHandler, log *logger.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		lookback: lookback,
		checker:  checker,
		onDrift:  onDrift,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// RunOnce executes a single check over the trailing lookback window.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	to := s.now().UTC()
	window := models.DriftWindow{From: to.Add(-s.lookback), To: to}

	report, err := s.checker.CheckCurrent(ctx, window)
	if err != nil {
		if errors.Is(err, repository.ErrNoCurrentVersion) {
			s.log.Debug("drift check skipped, no promoted model yet")
			return nil
		}
		return err
	}
	if report.IsDrifting && s.onDrift != nil {
		if err := s.onDrift(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the periodic loop. Safe to call once; Stop blocks until the
// loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					s.log.Error("scheduled drift check failed", logger.Error(err))
				}
			}
		}
	}()
	s.log.Info("drift scheduler started",
		logger.Duration("interval", s.interval),
		logger.Duration("lookback", s.lookback),
	)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.done
	s.started = false
	s.log.Info("drift scheduler stopped")
}
