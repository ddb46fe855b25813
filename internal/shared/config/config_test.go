package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Billing.FreeDailyLimit)
	assert.Equal(t, 6, cfg.Billing.ToolkitsFree)
	assert.Equal(t, 42, cfg.Billing.ToolkitsPaid)
	assert.Equal(t, ProviderPayPal, cfg.Billing.Provider)
	assert.Equal(t, 10*time.Second, cfg.Billing.GatewayTimeout)
	assert.Equal(t, 3, cfg.Billing.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Billing.Retry.BaseDelay)
	assert.Equal(t, "0 0 * * *", cfg.Cron.Schedule)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ASSISTLY_BILLING_FREE_DAILY_LIMIT", "20")
	t.Setenv("ASSISTLY_BILLING_PROVIDER", "stripe")
	t.Setenv("PAYPAL_PLAN_ID", "P-123")
	t.Setenv("CRON_SECRET_TOKEN", "cron-token")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/assistly")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Billing.FreeDailyLimit)
	assert.Equal(t, ProviderStripe, cfg.Billing.Provider)
	assert.Equal(t, "P-123", cfg.Billing.PlanID)
	assert.Equal(t, "cron-token", cfg.Cron.SecretToken)
	assert.Equal(t, "postgres://u:p@db:5432/assistly", cfg.Database.DSN())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  driver: sqlite
  sqlite_path: /tmp/assistly.db
billing:
  free_daily_limit: 7
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Billing.FreeDailyLimit)
	assert.Equal(t, "/tmp/assistly.db", cfg.Database.DSN())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres"},
			Auth:     AuthConfig{JWTSecret: "s"},
			Billing: BillingConfig{
				Provider:       ProviderPayPal,
				FreeDailyLimit: 5,
				ToolkitsFree:   6,
				ToolkitsPaid:   42,
				Retry:          RetryConfig{MaxAttempts: 3},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.Billing.Provider = "braintree"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non positive limit", func(t *testing.T) {
		cfg := valid()
		cfg.Billing.FreeDailyLimit = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("paid toolkits below free", func(t *testing.T) {
		cfg := valid()
		cfg.Billing.ToolkitsPaid = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.Database.Driver = "mysql"
		assert.Error(t, cfg.Validate())
	})
}

func TestBillingURLs(t *testing.T) {
	cfg := BillingConfig{AppURL: "https://app.example.com/"}
	assert.Equal(t, "https://app.example.com/api/billing/return", cfg.ReturnURL())
	assert.Equal(t, "https://app.example.com/api/billing/cancel", cfg.CancelURL())
}
