package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// WarmAt is the market-local wall time of the daily job, just after the day rolls over.
const WarmAt = "00:01"

// Warmer precomputes the finished day's production total.
type Warmer interface {
	WarmYesterdayTotal(ctx context.Context) error
}

// Scheduler runs calendar jobs in the market time zone.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	logger    *zap.Logger
	timeout   time.Duration
}

// New creates a new Scheduler whose clock runs in zone.
func New(zone *time.Location, warmer Warmer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(zone),
		warmer:    warmer,
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(WarmAt).Do(s.Warm)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.String("warm_at", WarmAt), zap.String("zone", s.scheduler.Location().String()))
	return nil
}

// Warm refreshes yesterday's total. Failures and panics are logged.
func (s *Scheduler) Warm() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := solar.Guard(func() error { return s.warmer.WarmYesterdayTotal(ctx) })
	if err != nil {
		s.logger.Error("yesterday total warm-up failed", zap.Error(err))
	}
}

// NextRun reports when the daily job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
