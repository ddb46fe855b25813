// Package webhook turns verified billing provider notifications into tier transitions.
package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
	"github.com/assistly/server/internal/module/subscription"
	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

// Outcomes recorded per delivery.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// ErrSignatureInvalid is returned when a delivery fails verification.
var ErrSignatureInvalid = apperrors.Unauthorized("WEBHOOK_SIGNATURE_INVALID", "Invalid webhook signature")

// DispatcherInterface handles inbound billing notifications.
type DispatcherInterface interface {
	// Handle verifies and processes one delivery. Only a verification failure is returned;
	// every other problem is logged and the delivery acknowledged.
	Handle(ctx context.Context, headers http.Header, body []byte) error
}

// Dispatcher maps provider events onto lifecycle transitions. Providers deliver at
// least once and in any order, so every transition it triggers is idempotent and
// the subscription state is re-read from the provider before acting.
type Dispatcher struct {
	gateway   provider.Gateway
	repo      account.Repository
	lifecycle subscription.LifecycleInterface
	store     Store
	retry     retry.Policy
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil store disables redelivery detection.
func NewDispatcher(
	gateway provider.Gateway,
	repo account.Repository,
	lifecycle subscription.LifecycleInterface,
	store Store,
	policy retry.Policy,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if store == nil {
		store = NopStore{}
	}
	return &Dispatcher{
		gateway:   gateway,
		repo:      repo,
		lifecycle: lifecycle,
		store:     store,
		retry:     policy,
		metrics:   m,
		logger:    logger.With(zap.String("provider", gateway.Name())),
	}
}

var _ DispatcherInterface = (*Dispatcher)(nil)

// Handle verifies and processes one delivery.
func (d *Dispatcher) Handle(ctx context.Context, headers http.Header, body []byte) error {
	ok, err := d.gateway.VerifyWebhookSignature(ctx, headers, body)
	if err != nil || !ok {
		fields := []zap.Field{zap.Int("body_bytes", len(body))}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		d.logger.Warn("webhook signature rejected", fields...)
		d.metrics.RecordWebhookEvent(d.gateway.Name(), "unknown", OutcomeRejected)
		return ErrSignatureInvalid
	}

	event, err := d.gateway.ParseEvent(body)
	if err != nil {
		d.logger.Warn("webhook payload malformed", zap.Error(err))
		d.metrics.RecordWebhookEvent(d.gateway.Name(), "unknown", OutcomeMalformed)
		return nil
	}

	log := d.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("subscription_id", event.SubscriptionID),
	)

	if event.ID != "" {
		seen, err := d.store.Seen(ctx, d.gateway.Name(), event.ID)
		if err != nil {
			log.Warn("webhook dedupe lookup failed", zap.Error(err))
		} else if seen {
			log.Info("webhook redelivery acknowledged")
			d.metrics.RecordWebhookEvent(d.gateway.Name(), string(event.Kind), OutcomeDuplicate)
			return nil
		}
	}

	outcome, err := d.dispatch(ctx, event, log)
	switch {
	case err != nil:
		log.Error("webhook processing failed", zap.Error(err), zap.Bool("retryable", apperrors.IsRetryable(err)))
	case outcome == OutcomeProcessed:
		log.Info("webhook processed", zap.String("kind", string(event.Kind)))
	default:
		log.Info("webhook acknowledged", zap.String("kind", string(event.Kind)), zap.String("outcome", outcome))
	}
	d.metrics.RecordWebhookEvent(d.gateway.Name(), string(event.Kind), outcome)

	// A failed event is left unmarked so a redelivery gets another chance.
	if err == nil && event.ID != "" {
		if err := d.store.Mark(ctx, d.gateway.Name(), event.ID, event.Type); err != nil {
			log.Warn("webhook dedupe mark failed", zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event *provider.Event, log *zap.Logger) (string, error) {
	switch event.Kind {
	case provider.EventSubscriptionActivated:
		return d.activated(ctx, event, log)
	case provider.EventSubscriptionCancelled:
		return d.cancelled(ctx, event, log)
	case provider.EventPaymentFailed:
		return d.paymentFailed(ctx, event, log)
	default:
		return OutcomeIgnored, nil
	}
}

func (d *Dispatcher) activated(ctx context.Context, event *provider.Event, log *zap.Logger) (string, error) {
	if event.SubscriptionID == "" {
		return OutcomeMalformed, nil
	}
	// The notification may be older than the subscription's current state.
	details, err := d.gateway.GetSubscriptionDetails(ctx, event.SubscriptionID)
	if err != nil {
		return OutcomeFailed, err
	}
	if details.Status != provider.StatusActive && details.Status != provider.StatusApproved {
		log.Info("subscription not active, skipping upgrade", zap.String("status", string(details.Status)))
		return OutcomeIgnored, nil
	}

	acct, err := d.resolveForActivation(ctx, details, event)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("no account matches subscription", zap.String("subscriber_email", details.SubscriberEmail))
			return OutcomeUnmatched, nil
		}
		return OutcomeFailed, err
	}

	if err := d.lifecycle.Upgrade(ctx, acct.ID, event.SubscriptionID); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeProcessed, nil
}

// resolveForActivation finds the account by the reference attached at creation,
// then by an existing binding, then by subscriber email.
func (d *Dispatcher) resolveForActivation(ctx context.Context, details *provider.SubscriptionDetails, event *provider.Event) (*account.Account, error) {
	if id, err := uuid.Parse(details.AccountRef); err == nil {
		acct, err := d.getAccount(ctx, func(ctx context.Context) (*account.Account, error) {
			return d.repo.GetByID(ctx, id)
		})
		if !errors.Is(err, apperrors.ErrNotFound) {
			return acct, err
		}
	}

	acct, err := d.bySubscription(ctx, event.SubscriptionID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		return acct, err
	}

	if details.SubscriberEmail == "" {
		return nil, apperrors.AccountNotFound(event.SubscriptionID)
	}
	return d.getAccount(ctx, func(ctx context.Context) (*account.Account, error) {
		return d.repo.GetByEmail(ctx, details.SubscriberEmail)
	})
}

func (d *Dispatcher) cancelled(ctx context.Context, event *provider.Event, log *zap.Logger) (string, error) {
	if event.SubscriptionID == "" {
		return OutcomeMalformed, nil
	}
	acct, err := d.bySubscription(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("no account bound to cancelled subscription")
			return OutcomeUnmatched, nil
		}
		return OutcomeFailed, err
	}
	if err := d.lifecycle.Downgrade(ctx, acct.ID); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeProcessed, nil
}

// paymentFailed downgrades only when the provider confirms the subscription was
// suspended or ended. A single failed charge may still be retried by the provider.
func (d *Dispatcher) paymentFailed(ctx context.Context, event *provider.Event, log *zap.Logger) (string, error) {
	if event.SubscriptionID == "" {
		return OutcomeMalformed, nil
	}
	acct, err := d.bySubscription(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("no account bound to failing subscription")
			return OutcomeUnmatched, nil
		}
		return OutcomeFailed, err
	}

	details, err := d.gateway.GetSubscriptionDetails(ctx, event.SubscriptionID)
	if err != nil {
		return OutcomeFailed, err
	}
	// EXPIRED is left to the SUBSCRIPTION.EXPIRED event.
	if details.Status != provider.StatusSuspended && details.Status != provider.StatusCancelled {
		log.Info("payment failed but subscription still in good standing", zap.String("status", string(details.Status)))
		return OutcomeIgnored, nil
	}

	if err := d.lifecycle.Downgrade(ctx, acct.ID); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeProcessed, nil
}

func (d *Dispatcher) bySubscription(ctx context.Context, subscriptionID string) (*account.Account, error) {
	return d.getAccount(ctx, func(ctx context.Context) (*account.Account, error) {
		return d.repo.GetByExternalSubscriptionID(ctx, subscriptionID)
	})
}

func (d *Dispatcher) getAccount(ctx context.Context, get func(ctx context.Context) (*account.Account, error)) (*account.Account, error) {
	var acct *account.Account
	err := d.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		acct, err = get(ctx)
		return err
	})
	return acct, err
}
