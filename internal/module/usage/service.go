package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

// ServiceInterface defines the usage service interface.
type ServiceInterface interface {
	// CanStartUsageUnit reports whether the account may start another usage unit now.
	CanStartUsageUnit(ctx context.Context, accountID uuid.UUID) (bool, error)
	// Admit returns a usage-limit error when the account may not start another unit.
	Admit(ctx context.Context, accountID uuid.UUID) error
	// RecordUsageUnit counts one performed unit and returns the resulting status.
	RecordUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error)
	// ConsumeUsageUnit admits and counts one unit in a single store write. It
	// returns a usage-limit error when no allowance is left.
	ConsumeUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error)
	// GetUsageStatus returns the tier and remaining allowance.
	GetUsageStatus(ctx context.Context, accountID uuid.UUID) (*Status, error)
	// GetLimits returns the plan entitlement. It never fails.
	GetLimits(ctx context.Context, accountID uuid.UUID) *Limits
}

// Config holds usage service settings.
type Config struct {
	DailyLimit   int
	ToolkitsFree int
	ToolkitsPaid int
	UpgradeURL   string
	Retry        retry.Policy
}

// Service implements usage accounting on top of the plan store.
type Service struct {
	repo       account.Repository
	accountant Accountant
	toolkits   ToolkitLimits
	upgradeURL string
	retry      retry.Policy
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new usage service.
func NewService(repo account.Repository, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		accountant: NewAccountant(cfg.DailyLimit),
		toolkits:   NewToolkitLimits(cfg.ToolkitsFree, cfg.ToolkitsPaid),
		upgradeURL: cfg.UpgradeURL,
		retry:      cfg.Retry,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

var _ ServiceInterface = (*Service)(nil)

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Accountant returns the admission rules in use.
func (s *Service) Accountant() Accountant {
	return s.accountant
}

func (s *Service) today() string {
	return account.Day(s.now())
}

func (s *Service) load(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	var acct *account.Account
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.repo.GetByID(ctx, accountID)
		return err
	})
	return acct, err
}

// CanStartUsageUnit reports whether the account may start another usage unit now.
func (s *Service) CanStartUsageUnit(ctx context.Context, accountID uuid.UUID) (bool, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	ok := s.accountant.CanAdmit(acct, s.today())
	s.metrics.RecordAdmission(acct.Tier.String(), ok)
	return ok, nil
}

// Admit returns a usage-limit error when the account may not start another unit.
func (s *Service) Admit(ctx context.Context, accountID uuid.UUID) error {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	today := s.today()
	ok := s.accountant.CanAdmit(acct, today)
	s.metrics.RecordAdmission(acct.Tier.String(), ok)
	if !ok {
		s.logger.Info("usage limit reached",
			zap.String("account_id", accountID.String()),
			zap.Int("daily_count", acct.DailyCount),
			zap.Int("limit", s.accountant.DailyLimit),
		)
		return apperrors.UsageLimitExceeded(s.accountant.Remaining(acct, today), s.accountant.DailyLimit, s.upgradeURL)
	}
	return nil
}

// RecordUsageUnit counts one performed unit and returns the resulting status.
// The increment is not retried: a lost acknowledgement could otherwise count twice.
func (s *Service) RecordUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	today := s.today()
	acct, err := s.repo.RecordUsage(ctx, accountID, today)
	if err != nil {
		return nil, err
	}
	if !acct.IsPaid() {
		s.metrics.RecordUsageUnit()
	}
	s.logger.Debug("usage recorded",
		zap.String("account_id", accountID.String()),
		zap.String("tier", acct.Tier.String()),
		zap.Int("daily_count", acct.DailyCount),
	)
	return s.status(acct, today), nil
}

// ConsumeUsageUnit admits and counts one unit in a single store write, so
// concurrent callers at the boundary cannot push a free account past its limit.
// Like RecordUsageUnit it is not retried.
func (s *Service) ConsumeUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	today := s.today()
	acct, consumed, err := s.repo.ConsumeUsage(ctx, accountID, today, s.accountant.DailyLimit)
	if err != nil {
		return nil, err
	}
	if !consumed {
		s.metrics.RecordAdmission(acct.Tier.String(), false)
		s.logger.Info("usage limit reached",
			zap.String("account_id", accountID.String()),
			zap.Int("daily_count", acct.DailyCount),
			zap.Int("limit", s.accountant.DailyLimit),
		)
		return nil, apperrors.UsageLimitExceeded(s.accountant.Remaining(acct, today), s.accountant.DailyLimit, s.upgradeURL)
	}
	if !acct.IsPaid() {
		s.metrics.RecordUsageUnit()
	}
	return s.status(acct, today), nil
}

// GetUsageStatus returns the tier and remaining allowance.
func (s *Service) GetUsageStatus(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.status(acct, s.today()), nil
}

// GetLimits returns the plan entitlement. When the account cannot be read the
// free-tier limits are returned.
func (s *Service) GetLimits(ctx context.Context, accountID uuid.UUID) *Limits {
	tier := account.TierFree
	acct, err := s.load(ctx, accountID)
	if err != nil {
		s.logger.Warn("falling back to free limits",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
	} else {
		tier = acct.Tier
	}
	return &Limits{
		Plan:        tier,
		MaxToolkits: s.toolkits.For(tier),
		IsPremium:   tier == account.TierPaid,
	}
}

func (s *Service) status(acct *account.Account, today string) *Status {
	remaining := s.accountant.Remaining(acct, today)
	return &Status{
		Tier:      acct.Tier,
		Remaining: remaining,
		Limit:     s.accountant.DailyLimit,
		Unlimited: remaining == Unlimited,
	}
}
