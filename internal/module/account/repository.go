package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

// Repository is the plan store. Every write is a single-row or single-statement update.
type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*Account, error)

	// RecordUsage atomically counts one usage unit for a free account on today.
	// Paid accounts are left unchanged. It returns the account after the update.
	RecordUsage(ctx context.Context, id uuid.UUID, today string) (*Account, error)
	// ConsumeUsage is RecordUsage guarded by the daily limit in the same statement.
	// consumed is false when a free account had no allowance left on today.
	ConsumeUsage(ctx context.Context, id uuid.UUID, today string, limit int) (acct *Account, consumed bool, err error)
	// SetPaid moves the account to the paid tier without touching usage counters.
	SetPaid(ctx context.Context, id uuid.UUID, subscriptionID string) error
	// SetFree moves the account to the free tier and starts fresh counters on today.
	SetFree(ctx context.Context, id uuid.UUID, today string) error
	// ResetFreeTierCounters clears the counters of every free account.
	ResetFreeTierCounters(ctx context.Context) (int64, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new account repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

var _ Repository = (*repository)(nil)

func (r *repository) Create(ctx context.Context, acct *Account) error {
	if err := r.db.WithContext(ctx).Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("ACCOUNT_EXISTS", "an account with this email already exists")
		}
		return apperrors.Transient("create account", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if err != nil {
		return nil, classify("get account", err, id.String())
	}
	return &acct, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "email = ?", email).Error
	if err != nil {
		return nil, classify("get account by email", err, email)
	}
	return &acct, nil
}

func (r *repository) GetByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*Account, error) {
	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "external_subscription_id = ?", subscriptionID).Error
	if err != nil {
		return nil, classify("get account by subscription", err, subscriptionID)
	}
	return &acct, nil
}

func (r *repository) RecordUsage(ctx context.Context, id uuid.UUID, today string) (*Account, error) {
	acct, updated, err := r.increment(ctx, "record usage", id, today)
	if err != nil || updated {
		return acct, err
	}
	// Paid accounts are not touched.
	return r.GetByID(ctx, id)
}

func (r *repository) ConsumeUsage(ctx context.Context, id uuid.UUID, today string, limit int) (*Account, bool, error) {
	acct, updated, err := r.increment(ctx, "consume usage", id, today,
		clause.Expr{SQL: "(last_usage_date IS NULL OR last_usage_date <> ? OR daily_count < ?)", Vars: []any{today, limit}})
	if err != nil {
		return nil, false, err
	}
	if updated {
		return acct, true, nil
	}
	acct, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return acct, acct.IsPaid(), nil
}

// increment counts one usage unit on a free account in a single UPDATE ... RETURNING.
// The new count is computed from the stored row so concurrent increments cannot
// overwrite each other, and the returned row is the one this statement wrote.
func (r *repository) increment(ctx context.Context, op string, id uuid.UUID, today string, conds ...clause.Expression) (*Account, bool, error) {
	var acct Account
	tx := r.db.WithContext(ctx).
		Model(&acct).
		Clauses(clause.Returning{}).
		Where("id = ? AND tier = ?", id, TierFree)
	for _, cond := range conds {
		tx = tx.Where(cond)
	}
	result := tx.UpdateColumns(map[string]any{
		"daily_count":     gorm.Expr("CASE WHEN last_usage_date = ? THEN daily_count + 1 ELSE 1 END", today),
		"last_usage_date": today,
		"updated_at":      r.now().UTC(),
	})
	if result.Error != nil {
		return nil, false, classify(op, result.Error, id.String())
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}
	return &acct, true, nil
}

func (r *repository) SetPaid(ctx context.Context, id uuid.UUID, subscriptionID string) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"tier":                     TierPaid,
			"external_subscription_id": subscriptionID,
			"updated_at":               r.now().UTC(),
		})
	if result.Error != nil {
		return classify("set paid", result.Error, id.String())
	}
	if result.RowsAffected == 0 {
		return apperrors.AccountNotFound(id.String())
	}
	return nil
}

func (r *repository) SetFree(ctx context.Context, id uuid.UUID, today string) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"tier":                     TierFree,
			"external_subscription_id": nil,
			"daily_count":              0,
			"last_usage_date":          today,
			"updated_at":               r.now().UTC(),
		})
	if result.Error != nil {
		return classify("set free", result.Error, id.String())
	}
	if result.RowsAffected == 0 {
		return apperrors.AccountNotFound(id.String())
	}
	return nil
}

func (r *repository) ResetFreeTierCounters(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("tier = ?", TierFree).
		UpdateColumns(map[string]any{
			"daily_count":     0,
			"last_usage_date": nil,
			"updated_at":      r.now().UTC(),
		})
	if result.Error != nil {
		return 0, apperrors.Transient("reset free tier counters", result.Error)
	}
	return result.RowsAffected, nil
}

// classify maps a gorm error to the application taxonomy. Anything other than
// a missing row is a transient persistence failure.
func classify(op string, err error, ref string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.AccountNotFound(ref)
	}
	return apperrors.Transient(op, err)
}
