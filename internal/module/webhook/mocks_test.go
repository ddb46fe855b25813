package webhook

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
	"github.com/assistly/server/internal/module/subscription"
)

// MockRepository is a mock implementation of account.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, acct *account.Account) error {
	args := m.Called(ctx, acct)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockRepository) GetByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*account.Account, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockRepository) RecordUsage(ctx context.Context, id uuid.UUID, today string) (*account.Account, error) {
	args := m.Called(ctx, id, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockRepository) ConsumeUsage(ctx context.Context, id uuid.UUID, today string, limit int) (*account.Account, bool, error) {
	args := m.Called(ctx, id, today, limit)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*account.Account), args.Bool(1), args.Error(2)
}

func (m *MockRepository) SetPaid(ctx context.Context, id uuid.UUID, subscriptionID string) error {
	args := m.Called(ctx, id, subscriptionID)
	return args.Error(0)
}

func (m *MockRepository) SetFree(ctx context.Context, id uuid.UUID, today string) error {
	args := m.Called(ctx, id, today)
	return args.Error(0)
}

func (m *MockRepository) ResetFreeTierCounters(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockGateway is a mock implementation of provider.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "paypal" }

func (m *MockGateway) CreateSubscription(ctx context.Context, req provider.CreateRequest) (*provider.Subscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Subscription), args.Error(1)
}

func (m *MockGateway) GetSubscriptionDetails(ctx context.Context, id string) (*provider.SubscriptionDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SubscriptionDetails), args.Error(1)
}

func (m *MockGateway) CancelSubscription(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	args := m.Called(ctx, headers, body)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) ParseEvent(body []byte) (*provider.Event, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Event), args.Error(1)
}

// MockLifecycle is a mock implementation of subscription.LifecycleInterface.
type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Upgrade(ctx context.Context, accountID uuid.UUID, subscriptionID string) error {
	return m.Called(ctx, accountID, subscriptionID).Error(0)
}

func (m *MockLifecycle) Downgrade(ctx context.Context, accountID uuid.UUID) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *MockLifecycle) ResetAllFreeTierCounters(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var _ subscription.LifecycleInterface = (*MockLifecycle)(nil)
