// Package provider adapts external subscription billing providers to a single gateway contract.
package provider

import (
	"context"
	"net/http"
	"strings"
)

// Status is the provider-side lifecycle state of a subscription.
type Status string

const (
	StatusApprovalPending Status = "APPROVAL_PENDING"
	StatusApproved        Status = "APPROVED"
	StatusActive          Status = "ACTIVE"
	StatusSuspended       Status = "SUSPENDED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

// ParseStatus parses a provider status name. Unknown values report false.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusApprovalPending, StatusApproved, StatusActive, StatusSuspended, StatusCancelled, StatusExpired:
		return st, true
	default:
		return "", false
	}
}

// IsActive reports whether the subscription entitles the subscriber to the paid tier.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// IsTerminal reports whether the subscription can no longer become active.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// CreateRequest describes a subscription to open at the provider.
type CreateRequest struct {
	PlanID string
	// AccountID is echoed back by the provider on the subscription and its events.
	AccountID string
	Email     string
	ReturnURL string
	CancelURL string
	BrandName string
	// IdempotencyKey must be stable across retries of the same logical request.
	IdempotencyKey string
}

// Subscription is a newly created subscription awaiting subscriber approval.
type Subscription struct {
	ID          string
	Status      Status
	ApprovalURL string
}

// SubscriptionDetails is the provider's current view of a subscription.
type SubscriptionDetails struct {
	ID              string
	Status          Status
	PlanID          string
	SubscriberEmail string
	// AccountRef is the account identifier attached at creation, when present.
	AccountRef string
}

// EventKind classifies provider notifications by their effect on an account.
type EventKind string

const (
	EventSubscriptionActivated EventKind = "subscription_activated"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
	EventPaymentFailed         EventKind = "payment_failed"
	EventOther                 EventKind = "other"
)

// Event is a verified provider notification reduced to what the dispatcher needs.
type Event struct {
	ID             string
	Type           string
	Kind           EventKind
	SubscriptionID string
	// Details is populated when the notification embeds the subscription resource.
	Details *SubscriptionDetails
}

// Gateway is the contract every billing provider implements.
type Gateway interface {
	// Name returns the provider identifier used in logs and metrics.
	Name() string
	// CreateSubscription opens a subscription and returns where the subscriber approves it.
	CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error)
	// GetSubscriptionDetails fetches the provider's current view of a subscription.
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error)
	// CancelSubscription cancels at the provider. Cancelling an already cancelled subscription succeeds.
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	// VerifyWebhookSignature checks that body was sent by the provider.
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error)
	// ParseEvent decodes a verified notification body.
	ParseEvent(body []byte) (*Event, error)
}
