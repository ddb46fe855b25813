package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Billing provider names.
const (
	ProviderPayPal = "paypal"
	ProviderStripe = "stripe"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Billing  BillingConfig  `mapstructure:"billing"`
	PayPal   PayPalConfig   `mapstructure:"paypal"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Cron     CronConfig     `mapstructure:"cron"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// BillingConfig holds plan and gateway behaviour shared by all providers.
type BillingConfig struct {
	Provider       string        `mapstructure:"provider"`
	FreeDailyLimit int           `mapstructure:"free_daily_limit"`
	ToolkitsFree   int           `mapstructure:"max_toolkits_free"`
	ToolkitsPaid   int           `mapstructure:"max_toolkits_paid"`
	PlanID         string        `mapstructure:"plan_id"`
	AppURL         string        `mapstructure:"app_url"`
	UpgradeURL     string        `mapstructure:"upgrade_url"`
	GatewayTimeout time.Duration `mapstructure:"gateway_timeout"`
	WebhookDedupe  time.Duration `mapstructure:"webhook_dedupe_ttl"`
	Retry          RetryConfig   `mapstructure:"retry"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// ReturnURL is where the provider sends the user after approving a subscription.
func (c *BillingConfig) ReturnURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/api/billing/return"
}

// CancelURL is where the provider sends the user after abandoning approval.
func (c *BillingConfig) CancelURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/api/billing/cancel"
}

// RetryConfig holds the shared retry policy settings.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// BreakerConfig holds gateway circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// PayPalConfig holds PayPal REST credentials.
type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	WebhookID    string `mapstructure:"webhook_id"`
	BrandName    string `mapstructure:"brand_name"`
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// CronConfig holds daily reset settings.
type CronConfig struct {
	SecretToken string `mapstructure:"secret_token"`
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration, reading path when it is not empty.
func LoadFile(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/assistly")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("ASSISTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applySecretEnv lets deployment-standard variable names override sensitive values.
func applySecretEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_URL", &cfg.Database.URL},
		{"JWT_SECRET", &cfg.Auth.JWTSecret},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"PAYPAL_CLIENT_ID", &cfg.PayPal.ClientID},
		{"PAYPAL_CLIENT_SECRET", &cfg.PayPal.ClientSecret},
		{"PAYPAL_WEBHOOK_ID", &cfg.PayPal.WebhookID},
		{"PAYPAL_PLAN_ID", &cfg.Billing.PlanID},
		{"STRIPE_SECRET_KEY", &cfg.Stripe.SecretKey},
		{"STRIPE_WEBHOOK_SECRET", &cfg.Stripe.WebhookSecret},
		{"CRON_SECRET_TOKEN", &cfg.Cron.SecretToken},
	}
	for _, o := range overrides {
		if val := os.Getenv(o.env); val != "" {
			*o.dst = val
		}
	}
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	switch c.Billing.Provider {
	case ProviderPayPal, ProviderStripe:
	default:
		return fmt.Errorf("config: unknown billing provider %q", c.Billing.Provider)
	}
	if c.Billing.FreeDailyLimit <= 0 {
		return fmt.Errorf("config: billing.free_daily_limit must be positive, got %d", c.Billing.FreeDailyLimit)
	}
	if c.Billing.ToolkitsFree <= 0 || c.Billing.ToolkitsPaid < c.Billing.ToolkitsFree {
		return fmt.Errorf("config: billing toolkit limits must satisfy 0 < free <= paid, got %d and %d",
			c.Billing.ToolkitsFree, c.Billing.ToolkitsPaid)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Billing.Retry.MaxAttempts < 1 {
		return errors.New("config: billing.retry.max_attempts must be at least 1")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "assistly")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "assistly.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "assistly")

	// Billing defaults
	v.SetDefault("billing.provider", ProviderPayPal)
	v.SetDefault("billing.free_daily_limit", 5)
	v.SetDefault("billing.max_toolkits_free", 6)
	v.SetDefault("billing.max_toolkits_paid", 42)
	v.SetDefault("billing.plan_id", "")
	v.SetDefault("billing.app_url", "http://localhost:3000")
	v.SetDefault("billing.upgrade_url", "/account?upgrade=true")
	v.SetDefault("billing.gateway_timeout", 10*time.Second)
	v.SetDefault("billing.webhook_dedupe_ttl", 72*time.Hour)
	v.SetDefault("billing.retry.max_attempts", 3)
	v.SetDefault("billing.retry.base_delay", time.Second)
	v.SetDefault("billing.retry.max_delay", 10*time.Second)
	v.SetDefault("billing.retry.jitter", 0.2)
	v.SetDefault("billing.breaker.failure_threshold", 5)
	v.SetDefault("billing.breaker.max_requests", 1)
	v.SetDefault("billing.breaker.interval", time.Minute)
	v.SetDefault("billing.breaker.timeout", 30*time.Second)

	// PayPal defaults
	v.SetDefault("paypal.client_id", "")
	v.SetDefault("paypal.client_secret", "")
	v.SetDefault("paypal.webhook_id", "")
	v.SetDefault("paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.brand_name", "Assistly")

	// Stripe defaults
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")

	// Cron defaults
	v.SetDefault("cron.secret_token", "")
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.schedule", "0 0 * * *")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "assistly")
}
