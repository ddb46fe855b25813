package provider

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/shared/config"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

func newIdempotencyKey() string {
	return uuid.NewString()
}

// RetryPolicy builds the shared retry policy from configuration.
func RetryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

// New builds the configured provider wrapped with timeouts, retries and a circuit breaker.
// Missing credentials are not an error here; calls fail with a configuration error instead.
func New(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Resilient, error) {
	var gw Gateway
	switch strings.ToLower(cfg.Billing.Provider) {
	case "", config.ProviderPayPal:
		if cfg.PayPal.ClientID == "" || cfg.PayPal.ClientSecret == "" {
			logger.Warn("paypal credentials are not configured")
		}
		gw = NewPayPalGateway(PayPalConfig{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			BaseURL:      cfg.PayPal.BaseURL,
			WebhookID:    cfg.PayPal.WebhookID,
		})
	case config.ProviderStripe:
		if cfg.Stripe.SecretKey == "" {
			logger.Warn("stripe secret key is not configured")
		}
		gw = NewStripeGateway(StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
	default:
		return nil, fmt.Errorf("unknown billing provider %q", cfg.Billing.Provider)
	}

	b := cfg.Billing
	return NewResilient(gw, ResilienceOptions{
		Timeout:          b.GatewayTimeout,
		Retry:            RetryPolicy(b.Retry),
		FailureThreshold: b.Breaker.FailureThreshold,
		MaxRequests:      b.Breaker.MaxRequests,
		Interval:         b.Breaker.Interval,
		OpenTimeout:      b.Breaker.Timeout,
		Metrics:          m,
		Logger:           logger,
	}), nil
}
