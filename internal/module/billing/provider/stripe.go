package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	stripeAccountKey      = "account_id"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint. Empty uses api.stripe.com.
	BaseURL    string
	HTTPClient *http.Client
}

// StripeGateway implements Gateway on Stripe Billing.
// Subscriptions are created incomplete and become active once the first invoice is paid.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a Stripe gateway with its own API client.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name returns the provider name.
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateSubscription creates a customer and an incomplete subscription on the plan price.
// The approval URL is the hosted page of the first invoice.
func (g *StripeGateway) CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if req.PlanID == "" {
		return nil, apperrors.Configuration("stripe price id is not configured", nil)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	custParams := &stripe.CustomerParams{}
	if req.Email != "" {
		custParams.Email = stripe.String(req.Email)
	}
	custParams.Context = ctx
	custParams.IdempotencyKey = stripe.String(key + "-customer")
	custParams.AddMetadata(stripeAccountKey, req.AccountID)

	cust, err := g.api.Customers.New(custParams)
	if err != nil {
		return nil, g.classify(err, req.PlanID, true)
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(cust.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PlanID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	subParams.Context = ctx
	subParams.IdempotencyKey = stripe.String(key)
	subParams.AddMetadata(stripeAccountKey, req.AccountID)
	subParams.AddExpand("latest_invoice")

	s, err := g.api.Subscriptions.New(subParams)
	if err != nil {
		return nil, g.classify(err, req.PlanID, true)
	}

	sub := &Subscription{
		ID:     s.ID,
		Status: mapStripeStatus(s.Status),
	}
	if s.LatestInvoice != nil {
		sub.ApprovalURL = s.LatestInvoice.HostedInvoiceURL
	}
	if sub.ApprovalURL == "" {
		return nil, apperrors.Internal("stripe returned no hosted invoice", nil).With("subscription_id", s.ID)
	}
	return sub, nil
}

// GetSubscriptionDetails fetches a subscription with its customer expanded.
func (g *StripeGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	s, err := g.get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return stripeDetails(s), nil
}

func (g *StripeGateway) get(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if subscriptionID == "" {
		return nil, apperrors.Validation("subscription_id", "subscription id is required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	s, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, g.classify(err, subscriptionID, false)
	}
	return s, nil
}

// CancelSubscription schedules cancellation at the end of the paid period.
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	s, err := g.get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if mapStripeStatus(s.Status).IsTerminal() || s.CancelAtPeriodEnd {
		return nil
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("cancel_reason", reason)
	}
	if _, err := g.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return g.classify(err, subscriptionID, false)
	}
	return nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the endpoint secret.
func (g *StripeGateway) VerifyWebhookSignature(_ context.Context, headers http.Header, body []byte) (bool, error) {
	if g.webhookSecret == "" {
		return false, apperrors.Configuration("stripe webhook secret is not configured", nil)
	}
	sig := headers.Get(stripeSignatureHeader)
	if sig == "" {
		return false, nil
	}
	if err := webhook.ValidatePayload(body, sig, g.webhookSecret); err != nil {
		return false, nil
	}
	return true, nil
}

// ParseEvent decodes a Stripe event.
func (g *StripeGateway) ParseEvent(body []byte) (*Event, error) {
	var raw stripe.Event
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Validation("body", "malformed webhook payload")
	}
	if raw.Type == "" {
		return nil, apperrors.Validation("type", "event type is required")
	}
	event := &Event{ID: raw.ID, Type: string(raw.Type), Kind: EventOther}

	var object json.RawMessage
	if raw.Data != nil {
		object = raw.Data.Raw
	}
	switch raw.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(object, &s); err != nil {
			return nil, apperrors.Validation("data", "malformed subscription object")
		}
		event.SubscriptionID = s.ID
		event.Details = stripeDetails(&s)
		if raw.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			event.Kind = EventSubscriptionCancelled
		} else {
			event.Kind = kindForStatus(event.Details.Status)
		}
	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(object, &inv); err != nil {
			return nil, apperrors.Validation("data", "malformed invoice object")
		}
		if inv.Subscription != nil {
			event.SubscriptionID = inv.Subscription.ID
			event.Kind = EventPaymentFailed
		}
	}
	return event, nil
}

func kindForStatus(s Status) EventKind {
	switch {
	case s.IsActive():
		return EventSubscriptionActivated
	case s.IsTerminal():
		return EventSubscriptionCancelled
	case s == StatusSuspended:
		return EventPaymentFailed
	default:
		return EventOther
	}
}

func stripeDetails(s *stripe.Subscription) *SubscriptionDetails {
	d := &SubscriptionDetails{
		ID:         s.ID,
		Status:     mapStripeStatus(s.Status),
		AccountRef: s.Metadata[stripeAccountKey],
	}
	if s.Customer != nil {
		d.SubscriberEmail = s.Customer.Email
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		d.PlanID = s.Items.Data[0].Price.ID
	}
	return d
}

// mapStripeStatus folds Stripe's subscription states onto the gateway states.
func mapStripeStatus(s stripe.SubscriptionStatus) Status {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return StatusActive
	case stripe.SubscriptionStatusIncomplete:
		return StatusApprovalPending
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return StatusSuspended
	case stripe.SubscriptionStatusCanceled:
		return StatusCancelled
	case stripe.SubscriptionStatusIncompleteExpired:
		return StatusExpired
	default:
		return ""
	}
}

func (g *StripeGateway) classify(err error, ref string, creating bool) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperrors.Unavailable(g.Name(), err)
	}

	switch {
	case se.HTTPStatusCode >= http.StatusInternalServerError, se.HTTPStatusCode == http.StatusTooManyRequests, se.HTTPStatusCode == 0:
		return apperrors.Unavailable(g.Name(), err)
	case se.HTTPStatusCode == http.StatusUnauthorized, se.HTTPStatusCode == http.StatusForbidden:
		return apperrors.Configuration("stripe rejected the api key", err)
	case string(se.Type) == "card_error":
		return apperrors.PaymentFailed(se.Msg, err)
	case creating:
		return apperrors.Configuration("stripe rejected the subscription plan", err).With("plan_id", ref)
	case se.HTTPStatusCode == http.StatusNotFound, string(se.Code) == "resource_missing":
		return apperrors.SubscriptionNotFound(ref)
	}
	return apperrors.Internal("stripe request failed", err)
}
