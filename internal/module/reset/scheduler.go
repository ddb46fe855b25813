package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs at midnight UTC.
const DefaultSchedule = "0 0 * * *"

// Scheduler runs the reset in-process on a cron schedule.
type Scheduler struct {
	runner  *Runner
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler creates a scheduler for the given five-field schedule, evaluated in UTC.
func NewScheduler(runner *Runner, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Scheduler{
		runner:  runner,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		timeout: 10 * time.Minute,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	// Runner logs and records the outcome.
	_, _ = s.runner.Run(ctx, TriggerSchedule)
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	if entries := s.cron.Entries(); len(entries) > 0 {
		s.logger.Info("daily reset scheduler started", zap.Time("next_run", entries[0].Next))
	}
}

// Stop stops the scheduler and waits for a running reset to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
