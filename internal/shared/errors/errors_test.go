package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		kind   Kind
	}{
		{"validation", Validation("plan_id", "plan id is required"), http.StatusBadRequest, KindValidation},
		{"unauthorized", Unauthorized("", ""), http.StatusUnauthorized, KindUnauthorized},
		{"account not found", AccountNotFound("a-1"), http.StatusNotFound, KindNotFound},
		{"subscription not found", SubscriptionNotFound("sub-1"), http.StatusNotFound, KindNotFound},
		{"usage limit", UsageLimitExceeded(0, 5, "/upgrade"), http.StatusTooManyRequests, KindUsageLimit},
		{"payment failed", PaymentFailed("card declined", nil), http.StatusPaymentRequired, KindPaymentFailed},
		{"configuration", Configuration("plan missing", nil), http.StatusInternalServerError, KindConfiguration},
		{"unavailable", Unavailable("paypal", nil), http.StatusServiceUnavailable, KindUnavailable},
		{"transient", Transient("record usage", nil), http.StatusServiceUnavailable, KindTransient},
		{"internal", Internal("boom", nil), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.status, GetStatusCode(fmt.Errorf("wrapped: %w", tt.err)))
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestIsSentinel(t *testing.T) {
	err := fmt.Errorf("get account: %w", AccountNotFound("a-1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Unavailable("paypal", errors.New("dial tcp"))))
	assert.True(t, IsRetryable(fmt.Errorf("op: %w", Transient("update", nil))))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(Unavailable("paypal", context.Canceled)))
	assert.False(t, IsRetryable(PaymentFailed("declined", nil)))
	assert.False(t, IsRetryable(AccountNotFound("a-1")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	plain := errors.New("something broke")
	appErr := From(plain)
	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind)
	assert.ErrorIs(t, appErr, plain)

	timeout := From(fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.Equal(t, KindUnavailable, timeout.Kind)
	assert.True(t, timeout.Retryable)
}

func TestToResponse(t *testing.T) {
	t.Run("internal never leaks cause", func(t *testing.T) {
		resp := Internal("query failed", errors.New("pq: relation accounts does not exist")).ToResponse()
		assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "pq:")
		assert.Nil(t, resp.Error.Details)
	})

	t.Run("usage limit carries upgrade payload", func(t *testing.T) {
		resp := UsageLimitExceeded(0, 5, "/account?upgrade=true").ToResponse()
		assert.Equal(t, "USAGE_LIMIT_EXCEEDED", resp.Error.Code)
		assert.Equal(t, 0, resp.Error.Details["remaining"])
		assert.Equal(t, 5, resp.Error.Details["limit"])
		assert.Equal(t, "/account?upgrade=true", resp.Error.Details["upgrade_url"])
	})

	t.Run("validation names the field", func(t *testing.T) {
		resp := Validation("subscription_id", "subscription id is required").ToResponse()
		assert.Equal(t, "subscription_id", resp.Error.Details["field"])
		assert.Equal(t, "subscription id is required", resp.Error.Message)
	})

	t.Run("transient hides operation", func(t *testing.T) {
		resp := Transient("record usage", errors.New("conn reset")).ToResponse()
		assert.True(t, resp.Error.Retryable)
		assert.Nil(t, resp.Error.Details)
	})

	t.Run("payment failed surfaces provider reason", func(t *testing.T) {
		resp := PaymentFailed("Instrument declined", nil).ToResponse()
		assert.Equal(t, "Instrument declined", resp.Error.Message)
		assert.False(t, resp.Error.Retryable)
	})
}
