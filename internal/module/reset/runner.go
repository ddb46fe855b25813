// Package reset runs the daily reset of free-tier usage counters.
package reset

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/shared/metrics"
)

// Triggers recorded per run.
const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Resetter clears the counters of free accounts.
type Resetter interface {
	ResetAllFreeTierCounters(ctx context.Context) (int64, error)
}

// Purger deletes webhook dedupe entries older than cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result describes one run.
type Result struct {
	Day      string        `json:"day"`
	Accounts int64         `json:"accounts_reset"`
	Purged   int64         `json:"webhook_events_purged"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"-"`
}

// Runner performs the reset and the housekeeping that rides along with it.
type Runner struct {
	resetter  Resetter
	purger    Purger
	lock      Locker
	retention time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewRunner creates a runner. A nil purger skips purging and a nil lock never blocks.
func NewRunner(resetter Resetter, purger Purger, lock Locker, retention time.Duration, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if lock == nil {
		lock = NopLocker{}
	}
	return &Runner{
		resetter:  resetter,
		purger:    purger,
		lock:      lock,
		retention: retention,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run resets the counters once. Scheduled runs take the per-day lock so only one
// replica does the work; manual runs always proceed since the reset is idempotent.
func (r *Runner) Run(ctx context.Context, trigger string) (*Result, error) {
	start := r.now()
	res := &Result{Day: account.Day(start)}
	log := r.logger.With(zap.String("trigger", trigger), zap.String("day", res.Day))

	if trigger == TriggerSchedule {
		ok, err := r.lock.TryLock(ctx, res.Day)
		if err != nil {
			log.Warn("daily reset lock unavailable, running anyway", zap.Error(err))
		} else if !ok {
			log.Info("daily reset already claimed for today")
			res.Skipped = true
			r.metrics.RecordDailyReset(trigger, "skipped", 0)
			return res, nil
		}
	}

	n, err := r.resetter.ResetAllFreeTierCounters(ctx)
	res.Duration = r.now().Sub(start)
	if err != nil {
		log.Error("daily reset failed", zap.Error(err), zap.Duration("duration", res.Duration))
		r.metrics.RecordDailyReset(trigger, "error", 0)
		return nil, err
	}
	res.Accounts = n

	if r.purger != nil && r.retention > 0 {
		purged, err := r.purger.Purge(ctx, start.Add(-r.retention))
		if err != nil {
			log.Warn("webhook event purge failed", zap.Error(err))
		}
		res.Purged = purged
	}

	r.metrics.RecordDailyReset(trigger, "success", n)
	log.Info("daily reset completed",
		zap.Int64("accounts_reset", n),
		zap.Int64("webhook_events_purged", res.Purged),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
