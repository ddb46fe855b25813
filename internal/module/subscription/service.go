package subscription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
	"github.com/assistly/server/internal/module/usage"
	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/retry"
)

const (
	// DefaultCancelReason is sent to the provider when the user gives none.
	DefaultCancelReason = "User requested cancellation"

	cancelNotice = "Your subscription has been cancelled. You keep premium access until the end of the current billing period."
)

// ServiceInterface defines the user-initiated subscription operations.
type ServiceInterface interface {
	// RequestUpgrade opens a subscription at the provider and returns where the user approves it.
	RequestUpgrade(ctx context.Context, accountID uuid.UUID, planID string) (*UpgradeResult, error)
	// ConfirmUpgrade moves the account to the paid tier once the provider reports the subscription approved.
	ConfirmUpgrade(ctx context.Context, accountID uuid.UUID, subscriptionID string) (*ConfirmResult, error)
	// ConfirmReturn confirms a subscription identified only by the provider's approval redirect.
	ConfirmReturn(ctx context.Context, subscriptionID string) (*ConfirmResult, error)
	// RequestCancellation cancels at the provider. The tier changes when the provider confirms.
	RequestCancellation(ctx context.Context, accountID uuid.UUID, reason string) (*CancelResult, error)
	// GetStatus returns the plan view of the account.
	GetStatus(ctx context.Context, accountID uuid.UUID) (*StatusView, error)
}

// Config holds subscription service settings.
type Config struct {
	PlanID    string
	ReturnURL string
	CancelURL string
	BrandName string
	Retry     retry.Policy
}

// Service implements the subscription flows on top of the gateway and the lifecycle controller.
type Service struct {
	repo       account.Repository
	gateway    provider.Gateway
	lifecycle  LifecycleInterface
	accountant usage.Accountant
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new subscription service.
func NewService(
	repo account.Repository,
	gateway provider.Gateway,
	lifecycle LifecycleInterface,
	accountant usage.Accountant,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:       repo,
		gateway:    gateway,
		lifecycle:  lifecycle,
		accountant: accountant,
		cfg:        cfg,
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

func (s *Service) load(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	var acct *account.Account
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.repo.GetByID(ctx, accountID)
		return err
	})
	return acct, err
}

// RequestUpgrade opens a subscription on planID, or on the configured plan when planID is empty.
func (s *Service) RequestUpgrade(ctx context.Context, accountID uuid.UUID, planID string) (*UpgradeResult, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		planID = s.cfg.PlanID
	}
	if planID == "" {
		return nil, apperrors.Validation("plan_id", "plan id is required")
	}
	if s.cfg.PlanID != "" && planID != s.cfg.PlanID {
		return nil, apperrors.Validation("plan_id", "unknown plan")
	}

	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.IsPaid() {
		return nil, apperrors.Conflict("SUBSCRIPTION_ALREADY_ACTIVE", "You already have an active subscription.")
	}

	sub, err := s.gateway.CreateSubscription(ctx, provider.CreateRequest{
		PlanID:    planID,
		AccountID: accountID.String(),
		Email:     acct.Email,
		ReturnURL: s.cfg.ReturnURL,
		CancelURL: s.cfg.CancelURL,
		BrandName: s.cfg.BrandName,
	})
	if err != nil {
		s.logger.Error("create subscription failed",
			zap.String("account_id", accountID.String()),
			zap.String("plan_id", planID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.String("account_id", accountID.String()),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
	)
	return &UpgradeResult{
		SubscriptionID: sub.ID,
		ApprovalURL:    sub.ApprovalURL,
		Status:         sub.Status,
	}, nil
}

// ConfirmUpgrade checks the subscription at the provider and upgrades the account.
// A subscription attached to another account is refused.
func (s *Service) ConfirmUpgrade(ctx context.Context, accountID uuid.UUID, subscriptionID string) (*ConfirmResult, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, apperrors.Validation("subscription_id", "subscription id is required")
	}

	details, err := s.gateway.GetSubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if details.AccountRef != "" && details.AccountRef != accountID.String() {
		s.logger.Warn("subscription belongs to another account",
			zap.String("account_id", accountID.String()),
			zap.String("subscription_id", subscriptionID),
		)
		return nil, apperrors.Forbidden("SUBSCRIPTION_OWNERSHIP_MISMATCH", "This subscription belongs to another account.")
	}
	return s.confirm(ctx, accountID, details)
}

// ConfirmReturn resolves the account from the subscription itself: the account
// reference attached at creation, then the subscriber email.
func (s *Service) ConfirmReturn(ctx context.Context, subscriptionID string) (*ConfirmResult, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, apperrors.Validation("subscription_id", "subscription id is required")
	}

	details, err := s.gateway.GetSubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if id, parseErr := uuid.Parse(details.AccountRef); parseErr == nil {
		return s.confirm(ctx, id, details)
	}
	if details.SubscriberEmail == "" {
		return nil, apperrors.AccountNotFound(subscriptionID)
	}
	var acct *account.Account
	err = s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.repo.GetByEmail(ctx, details.SubscriberEmail)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, acct.ID, details)
}

func (s *Service) confirm(ctx context.Context, accountID uuid.UUID, details *provider.SubscriptionDetails) (*ConfirmResult, error) {
	if details.Status != provider.StatusActive && details.Status != provider.StatusApproved {
		return nil, apperrors.Conflict("SUBSCRIPTION_NOT_ACTIVE", "The subscription is not active yet.").
			With("status", string(details.Status))
	}
	if err := s.lifecycle.Upgrade(ctx, accountID, details.ID); err != nil {
		return nil, err
	}
	return &ConfirmResult{
		SubscriptionID: details.ID,
		Status:         details.Status,
		Tier:           account.TierPaid,
	}, nil
}

// RequestCancellation cancels the account's subscription at the provider.
// The account stays paid until the provider's cancellation notification arrives.
func (s *Service) RequestCancellation(ctx context.Context, accountID uuid.UUID, reason string) (*CancelResult, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	subscriptionID := acct.SubscriptionID()
	if !acct.IsPaid() || subscriptionID == "" {
		return nil, apperrors.Conflict("NO_ACTIVE_SUBSCRIPTION", "You don't have an active subscription.")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	if err := s.gateway.CancelSubscription(ctx, subscriptionID, reason); err != nil {
		s.logger.Error("cancel subscription failed",
			zap.String("account_id", accountID.String()),
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("subscription cancellation requested",
		zap.String("account_id", accountID.String()),
		zap.String("subscription_id", subscriptionID),
	)
	return &CancelResult{SubscriptionID: subscriptionID, Message: cancelNotice}, nil
}

// GetStatus returns the tier and allowance. Paid accounts also get the
// provider's view when it can be fetched.
func (s *Service) GetStatus(ctx context.Context, accountID uuid.UUID) (*StatusView, error) {
	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	remaining := s.accountant.Remaining(acct, account.Day(s.now()))
	view := &StatusView{
		Tier:           acct.Tier,
		SubscriptionID: acct.SubscriptionID(),
		Remaining:      remaining,
		Limit:          s.accountant.DailyLimit,
		Unlimited:      remaining == usage.Unlimited,
	}
	if view.SubscriptionID == "" {
		return view, nil
	}

	details, err := s.gateway.GetSubscriptionDetails(ctx, view.SubscriptionID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("subscription details unavailable",
				zap.String("account_id", accountID.String()),
				zap.String("subscription_id", view.SubscriptionID),
				zap.Error(err),
			)
		}
		return view, nil
	}
	view.Subscription = &SubscriptionView{Status: details.Status, PlanID: details.PlanID}
	return view, nil
}
