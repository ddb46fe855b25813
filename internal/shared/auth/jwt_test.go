package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("secret", "assistly")
	accountID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		token, err := m.GenerateToken(accountID, "a@example.com", time.Minute)
		require.NoError(t, err)

		claims, err := m.ValidateToken(token)
		require.NoError(t, err)
		id, err := claims.AccountID()
		require.NoError(t, err)
		assert.Equal(t, accountID, id)
		assert.Equal(t, "a@example.com", claims.Email)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := m.GenerateToken(accountID, "", -time.Minute)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTManager("other", "assistly").GenerateToken(accountID, "", time.Minute)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewJWTManager("secret", "elsewhere").GenerateToken(accountID, "", time.Minute)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("subject is not an account id", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "assistly",
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidTokenClaims)
	})
}
