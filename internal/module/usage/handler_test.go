package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/shared/config"
	"github.com/assistly/server/internal/shared/database"
	apperrors "github.com/assistly/server/internal/shared/errors"
	"github.com/assistly/server/internal/shared/middleware"
	"github.com/assistly/server/internal/shared/retry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockService is a mock implementation of ServiceInterface.
type MockService struct {
	mock.Mock
}

func (m *MockService) CanStartUsageUnit(ctx context.Context, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) Admit(ctx context.Context, accountID uuid.UUID) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *MockService) RecordUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Status), args.Error(1)
}

func (m *MockService) ConsumeUsageUnit(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Status), args.Error(1)
}

func (m *MockService) GetUsageStatus(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Status), args.Error(1)
}

func (m *MockService) GetLimits(ctx context.Context, accountID uuid.UUID) *Limits {
	args := m.Called(ctx, accountID)
	return args.Get(0).(*Limits)
}

// withAccount stands in for the auth middleware.
func withAccount(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.AccountIDKey, id)
		c.Next()
	}
}

func newRouter(svc ServiceInterface, id uuid.UUID) *gin.Engine {
	router := gin.New()
	api := router.Group("/api")
	if id != uuid.Nil {
		api.Use(withAccount(id))
	}
	NewHandler(svc).RegisterRoutes(api)
	return router
}

func TestHandler_GetRemaining(t *testing.T) {
	id := uuid.New()

	t.Run("returns status", func(t *testing.T) {
		svc := new(MockService)
		svc.On("GetUsageStatus", mock.Anything, id).Return(&Status{Tier: account.TierFree, Remaining: 3, Limit: 5}, nil)

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/remaining", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 3, body.Remaining)
		assert.Equal(t, account.TierFree, body.Tier)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(new(MockService), uuid.Nil).ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/remaining", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("account not found", func(t *testing.T) {
		svc := new(MockService)
		svc.On("GetUsageStatus", mock.Anything, id).Return(nil, apperrors.AccountNotFound(id.String()))

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/remaining", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "ACCOUNT_NOT_FOUND")
	})
}

func TestHandler_GetLimits(t *testing.T) {
	id := uuid.New()

	t.Run("returns entitlement", func(t *testing.T) {
		svc := new(MockService)
		svc.On("GetLimits", mock.Anything, id).Return(&Limits{Plan: account.TierPaid, MaxToolkits: 42, IsPremium: true})

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/limits", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"plan":"paid","maxToolkits":42,"isPremium":true}`, w.Body.String())
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := new(MockService)

		w := httptest.NewRecorder()
		newRouter(svc, uuid.Nil).ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/limits", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "GetLimits", mock.Anything, mock.Anything)
	})
}

func TestHandler_Increment(t *testing.T) {
	id := uuid.New()

	t.Run("rejected by gate", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Admit", mock.Anything, id).Return(apperrors.UsageLimitExceeded(0, 5, "/upgrade"))

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/increment", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "USAGE_LIMIT_EXCEEDED")
		assert.Contains(t, w.Body.String(), "upgrade_url")
		svc.AssertNotCalled(t, "ConsumeUsageUnit", mock.Anything, mock.Anything)
	})

	t.Run("records when admitted", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Admit", mock.Anything, id).Return(nil)
		svc.On("ConsumeUsageUnit", mock.Anything, id).Return(&Status{Tier: account.TierFree, Remaining: 4, Limit: 5}, nil)

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/increment", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body IncrementResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, 4, body.Remaining)
	})

	t.Run("limit reached between gate and increment", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Admit", mock.Anything, id).Return(nil)
		svc.On("ConsumeUsageUnit", mock.Anything, id).Return(nil, apperrors.UsageLimitExceeded(0, 5, "/upgrade"))

		w := httptest.NewRecorder()
		newRouter(svc, id).ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/increment", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "USAGE_LIMIT_EXCEEDED")
	})
}

func TestHandler_DailyAllowanceScenario(t *testing.T) {
	db, err := database.New(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "usage.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db, &account.Account{}))

	repo := account.NewRepository(db)
	acct := &account.Account{Email: "new@example.com", Name: "New"}
	require.NoError(t, repo.Create(context.Background(), acct))

	now := fixedNow
	svc := NewService(repo, Config{DailyLimit: 5, Retry: retry.NoRetry()}, nil, zap.NewNop()).
		WithClock(func() time.Time { return now })
	router := newRouter(svc, acct.ID)

	remaining := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/usage/remaining", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Remaining
	}

	assert.Equal(t, 5, remaining())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/increment", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 0, remaining())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/increment", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	now = now.Add(24 * time.Hour)
	assert.Equal(t, 5, remaining())
}
