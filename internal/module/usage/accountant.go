package usage

import (
	"github.com/assistly/server/internal/module/account"
)

// Unlimited is the remaining allowance reported for paid accounts.
const Unlimited = -1

// DefaultDailyLimit is the free-tier allowance when none is configured.
const DefaultDailyLimit = 5

// Accountant decides admission from an account snapshot and a UTC day.
// It never mutates its input.
type Accountant struct {
	DailyLimit int
}

// NewAccountant creates an accountant with the given free-tier daily limit.
func NewAccountant(dailyLimit int) Accountant {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return Accountant{DailyLimit: dailyLimit}
}

// Remaining returns the allowance left on today, or Unlimited for paid accounts.
// A free account with no usage recorded on today has the full limit.
func (a Accountant) Remaining(acct *account.Account, today string) int {
	if acct.IsPaid() {
		return Unlimited
	}
	day, ok := acct.UsageDay()
	if !ok || day != today {
		return a.DailyLimit
	}
	return max(0, a.DailyLimit-acct.DailyCount)
}

// CanAdmit reports whether the account may start another usage unit on today.
func (a Accountant) CanAdmit(acct *account.Account, today string) bool {
	if acct.IsPaid() {
		return true
	}
	return a.Remaining(acct, today) > 0
}

// Apply returns the account as it is after one usage unit on today.
// The stored equivalent is account.Repository.RecordUsage.
func (a Accountant) Apply(acct *account.Account, today string) *account.Account {
	next := *acct
	if next.IsPaid() {
		return &next
	}
	if day, ok := next.UsageDay(); ok && day == today {
		next.DailyCount++
	} else {
		next.DailyCount = 1
		d := today
		next.LastUsageDate = &d
	}
	return &next
}

// Default toolkit selection limits per tier.
const (
	DefaultToolkitsFree = 6
	DefaultToolkitsPaid = 42
)

// ToolkitLimits caps how many toolkits a chat may select, by tier.
type ToolkitLimits struct {
	Free int
	Paid int
}

// NewToolkitLimits fills unset limits with the defaults.
func NewToolkitLimits(free, paid int) ToolkitLimits {
	if free <= 0 {
		free = DefaultToolkitsFree
	}
	if paid <= 0 {
		paid = DefaultToolkitsPaid
	}
	return ToolkitLimits{Free: free, Paid: paid}
}

// For returns the limit for tier. Anything but paid gets the free limit.
func (l ToolkitLimits) For(tier account.Tier) int {
	if tier == account.TierPaid {
		return l.Paid
	}
	return l.Free
}
