package account

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DayLayout is the storage format of a UTC calendar date.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar date of t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Tier is the billing classification of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// String returns the string representation.
func (t Tier) String() string {
	return string(t)
}

// IsValid checks if the tier is valid.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPaid:
		return true
	}
	return false
}

// Account is the per-user plan record. Name, Email and Preferences belong to
// the user and are never written by plan or usage operations.
type Account struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	Name        string    `json:"name"`
	Preferences string    `gorm:"type:text" json:"preferences,omitempty"`

	Tier                   Tier    `gorm:"type:varchar(16);not null;default:free;index" json:"tier"`
	DailyCount             int     `gorm:"not null;default:0" json:"daily_count"`
	LastUsageDate          *string `gorm:"type:varchar(10)" json:"last_usage_date,omitempty"`
	ExternalSubscriptionID *string `gorm:"index" json:"external_subscription_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name.
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate assigns an ID and the initial tier.
func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Tier == "" {
		a.Tier = TierFree
	}
	return nil
}

// IsPaid reports whether the account is on the paid tier.
func (a *Account) IsPaid() bool {
	return a.Tier == TierPaid
}

// SubscriptionID returns the attached external subscription ID, or "".
func (a *Account) SubscriptionID() string {
	if a.ExternalSubscriptionID == nil {
		return ""
	}
	return *a.ExternalSubscriptionID
}

// UsageDay returns the date of the last recorded usage.
func (a *Account) UsageDay() (string, bool) {
	if a.LastUsageDate == nil || *a.LastUsageDate == "" {
		return "", false
	}
	return *a.LastUsageDate, true
}
