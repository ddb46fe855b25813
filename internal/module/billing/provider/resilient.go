package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

// ResilienceOptions configures the resilient gateway wrapper.
type ResilienceOptions struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retry   retry.Policy

	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Resilient wraps a Gateway with per-attempt timeouts, retries of unavailable
// failures and a circuit breaker that fails fast while the provider is down.
type Resilient struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	retry   retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewResilient wraps next.
func NewResilient(next Gateway, opts ResilienceOptions) *Resilient {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	r := &Resilient{
		next:    next,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		metrics: opts.Metrics,
		logger:  logger.With(zap.String("provider", next.Name())),
	}
	r.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only provider outages count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return r
}

var _ Gateway = (*Resilient)(nil)

// State returns the circuit breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.cb.State()
}

// Name returns the wrapped provider name.
func (r *Resilient) Name() string {
	return r.next.Name()
}

// CreateSubscription creates a subscription. The idempotency key is fixed
// before the first attempt so retries cannot open a second subscription.
func (r *Resilient) CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = newIdempotencyKey()
	}
	var sub *Subscription
	err := r.call(ctx, "create_subscription", func(ctx context.Context) error {
		var err error
		sub, err = r.next.CreateSubscription(ctx, req)
		return err
	})
	return sub, err
}

// GetSubscriptionDetails fetches a subscription.
func (r *Resilient) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	var details *SubscriptionDetails
	err := r.call(ctx, "get_subscription", func(ctx context.Context) error {
		var err error
		details, err = r.next.GetSubscriptionDetails(ctx, subscriptionID)
		return err
	})
	return details, err
}

// CancelSubscription cancels a subscription.
func (r *Resilient) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	return r.call(ctx, "cancel_subscription", func(ctx context.Context) error {
		return r.next.CancelSubscription(ctx, subscriptionID, reason)
	})
}

// VerifyWebhookSignature verifies a notification.
func (r *Resilient) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	var ok bool
	err := r.call(ctx, "verify_webhook", func(ctx context.Context) error {
		var err error
		ok, err = r.next.VerifyWebhookSignature(ctx, headers, body)
		return err
	})
	return ok, err
}

// ParseEvent decodes a notification. It does no I/O.
func (r *Resilient) ParseEvent(body []byte) (*Event, error) {
	return r.next.ParseEvent(body)
}

func (r *Resilient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		_, err := r.cb.Execute(func() (any, error) {
			return nil, r.attempt(ctx, op, fn)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = apperrors.Unavailable(r.Name(), fmt.Errorf("%s: %w", op, err))
		}
		r.metrics.RecordGatewayRequest(r.Name(), op, outcome(err), time.Since(start))
		if err != nil {
			r.logger.Debug("gateway call failed",
				zap.String("operation", op),
				zap.Error(err),
				zap.Bool("retryable", apperrors.IsRetryable(err)),
			)
		}
		return err
	})
}

func (r *Resilient) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		if _, ok := apperrors.As(err); !ok || !apperrors.IsRetryable(err) {
			return apperrors.Unavailable(r.Name(), fmt.Errorf("%s timed out after %s: %w", op, r.timeout, err))
		}
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.KindOf(err))
}
