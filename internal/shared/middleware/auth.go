package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/assistly/server/internal/shared/auth"
	"github.com/assistly/server/internal/shared/response"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// AccountIDKey is the context key for the authenticated account ID.
	AccountIDKey = "account_id"
	// EmailKey is the context key for email.
	EmailKey = "email"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// RequireAuth returns a middleware that requires a valid JWT and sets the
// account ID and email in the context.
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			response.Unauthorized(c, "AUTHENTICATION_REQUIRED", "Authorization header required")
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		accountID, err := claims.AccountID()
		if err != nil {
			response.Unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Set(EmailKey, claims.Email)

		c.Next()
	}
}

// CronToken returns a middleware that requires the shared scheduler secret as a bearer token.
// An empty secret rejects every request.
func CronToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if secret == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			response.Unauthorized(c, "UNAUTHORIZED", "Unauthorized")
			return
		}
		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
}

// AccountID returns the authenticated account ID from context.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	if val, exists := c.Get(AccountIDKey); exists {
		if id, ok := val.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

// GetEmail returns the email from context.
func GetEmail(c *gin.Context) string {
	return c.GetString(EmailKey)
}
