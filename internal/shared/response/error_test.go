package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"usage limit", apperrors.UsageLimitExceeded(0, 5, "/upgrade"), http.StatusTooManyRequests, "USAGE_LIMIT_EXCEEDED"},
		{"not found", apperrors.AccountNotFound("a-1"), http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"plain error", errors.New("secret detail"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Error(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			var body apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Error.Code)
			assert.NotContains(t, w.Body.String(), "secret detail")
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestAbort(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Unauthorized(c, "", "")

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTHENTICATION_REQUIRED")
}
