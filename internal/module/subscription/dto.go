package subscription

import (
	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
)

// CreateRequest is the body of POST /subscription/create.
type CreateRequest struct {
	PlanID string `json:"plan_id"`
}

// ConfirmRequest is the body of POST /subscription/confirm.
type ConfirmRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

// CancelRequest is the body of POST /subscription/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// UpgradeResult is returned when a subscription has been opened at the provider.
type UpgradeResult struct {
	SubscriptionID string          `json:"subscription_id"`
	ApprovalURL    string          `json:"approval_url"`
	Status         provider.Status `json:"status"`
}

// ConfirmResult is returned once the account is on the paid tier.
type ConfirmResult struct {
	SubscriptionID string          `json:"subscription_id"`
	Status         provider.Status `json:"status"`
	Tier           account.Tier    `json:"tier"`
}

// CancelResult is returned after the provider accepted the cancellation.
type CancelResult struct {
	SubscriptionID string `json:"subscription_id"`
	Message        string `json:"message"`
}

// StatusView is the plan view of an account.
type StatusView struct {
	Tier           account.Tier      `json:"tier"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Remaining      int               `json:"remaining"`
	Limit          int               `json:"limit"`
	Unlimited      bool              `json:"unlimited"`
	Subscription   *SubscriptionView `json:"subscription,omitempty"`
}

// SubscriptionView is the provider-side state shown to a paid account.
type SubscriptionView struct {
	Status provider.Status `json:"status"`
	PlanID string          `json:"plan_id,omitempty"`
}
