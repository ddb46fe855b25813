package subscription

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

// Transition names used in metrics.
const (
	TransitionUpgrade   = "upgrade"
	TransitionDowngrade = "downgrade"
)

// LifecycleInterface transitions accounts between tiers.
type LifecycleInterface interface {
	// Upgrade moves the account to the paid tier bound to subscriptionID.
	Upgrade(ctx context.Context, accountID uuid.UUID, subscriptionID string) error
	// Downgrade moves the account to the free tier with fresh counters.
	Downgrade(ctx context.Context, accountID uuid.UUID) error
	// ResetAllFreeTierCounters clears the counters of every free account.
	ResetAllFreeTierCounters(ctx context.Context) (int64, error)
}

// Lifecycle is the only writer of tier and external subscription id.
type Lifecycle struct {
	repo    account.Repository
	retry   retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLifecycle creates a lifecycle controller.
func NewLifecycle(repo account.Repository, policy retry.Policy, m *metrics.Metrics, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:    repo,
		retry:   policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

var _ LifecycleInterface = (*Lifecycle)(nil)

// WithClock replaces the time source. Used by tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Upgrade binds the account to subscriptionID on the paid tier. Usage counters
// are left as they are. Repeating the call with the same subscription writes nothing.
func (l *Lifecycle) Upgrade(ctx context.Context, accountID uuid.UUID, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return apperrors.Validation("subscription_id", "subscription id is required")
	}

	noop := false
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		acct, err := l.repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.IsPaid() && acct.SubscriptionID() == subscriptionID {
			noop = true
			return nil
		}
		if acct.IsPaid() {
			l.logger.Warn("replacing subscription on paid account",
				zap.String("account_id", accountID.String()),
				zap.String("previous_subscription_id", acct.SubscriptionID()),
				zap.String("subscription_id", subscriptionID),
			)
		}
		return l.repo.SetPaid(ctx, accountID, subscriptionID)
	})

	if err == nil && noop {
		l.metrics.RecordTransition(TransitionUpgrade, "noop")
		return nil
	}
	l.metrics.RecordTransition(TransitionUpgrade, outcome(err))
	if err != nil {
		return err
	}
	l.logger.Info("account upgraded",
		zap.String("account_id", accountID.String()),
		zap.String("subscription_id", subscriptionID),
	)
	return nil
}

// Downgrade moves the account to the free tier, clears the subscription and
// starts today's counter at zero. Downgrading a free account resets its counter again.
func (l *Lifecycle) Downgrade(ctx context.Context, accountID uuid.UUID) error {
	today := account.Day(l.now())
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		return l.repo.SetFree(ctx, accountID, today)
	})
	l.metrics.RecordTransition(TransitionDowngrade, outcome(err))
	if err != nil {
		return err
	}
	l.logger.Info("account downgraded", zap.String("account_id", accountID.String()))
	return nil
}

// ResetAllFreeTierCounters clears the counters of every free account. Running it
// again leaves the same state.
func (l *Lifecycle) ResetAllFreeTierCounters(ctx context.Context) (int64, error) {
	var n int64
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = l.repo.ResetFreeTierCounters(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.KindOf(err))
}
