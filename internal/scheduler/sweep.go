package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/service"
)

const sweepTimeout = 5 * time.Minute

// SweepScheduler runs the deadline-reminder sweep on a cron schedule.
type SweepScheduler struct {
	lifecycle *service.LifecycleService
	cron      *cron.Cron
	logger    *zap.Logger
}

// NewSweepScheduler constructs a SweepScheduler.
func NewSweepScheduler(lifecycle *service.LifecycleService, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SweepScheduler{
		lifecycle: lifecycle,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *SweepScheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("deadline sweep scheduler started", zap.String("spec", spec))

	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("deadline sweep scheduler stopped")
}

func (s *SweepScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	result, err := s.lifecycle.RunDeadlineSweep(ctx)
	if err != nil {
		s.logger.Error("deadline sweep failed", zap.Error(err))
		return
	}

	s.logger.Info("deadline sweep finished",
		zap.Int("assignments", result.Assignments),
		zap.Int("notified", result.Notified),
	)
}
