package usage

import (
	"github.com/assistly/server/internal/module/account"
)

// Status is the read-only usage view of an account.
type Status struct {
	Tier      account.Tier `json:"tier"`
	Remaining int          `json:"remaining"`
	Limit     int          `json:"limit"`
	Unlimited bool         `json:"unlimited"`
}

// IncrementResponse is returned after a usage unit is recorded.
type IncrementResponse struct {
	Success   bool         `json:"success"`
	Tier      account.Tier `json:"tier"`
	Remaining int          `json:"remaining"`
	Unlimited bool         `json:"unlimited"`
}

// Limits is the caller's plan entitlement.
type Limits struct {
	Plan        account.Tier `json:"plan"`
	MaxToolkits int          `json:"maxToolkits"`
	IsPremium   bool         `json:"isPremium"`
}
