// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"KHM_DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"KHM_REDIS_URL"`
	Password string        `yaml:"password" env:"KHM_REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StripeConfig struct {
	SecretKey      string        `yaml:"secret_key" env:"KHM_STRIPE_SECRET_KEY"`
	PublishableKey string        `yaml:"publishable_key" env:"KHM_STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret  string        `yaml:"webhook_secret" env:"KHM_STRIPE_WEBHOOK_SECRET"`
	Tolerance      time.Duration `yaml:"tolerance"`
	Environment    string        `yaml:"environment"` // production | sandbox
}

type TaxConfig struct {
	State string  `yaml:"state"`
	Rate  float64 `yaml:"rate"`
}

// RateDecimal returns the tax rate as a decimal.
func (t TaxConfig) RateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(t.Rate)
}

type SiteConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	AdminEmail string `yaml:"admin_email"`
	Currency   string `yaml:"currency"`
	Locale     string `yaml:"locale"`
}

type EmailConfig struct {
	TemplateDir string        `yaml:"template_dir"`
	UseQueue    bool          `yaml:"use_queue"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	BatchSize   int           `yaml:"batch_size"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	// Relay is the local MTA used by the "default" delivery method.
	RelayHost string `yaml:"relay_host"`
	RelayPort int    `yaml:"relay_port"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type SchedulerConfig struct {
	QueueInterval     time.Duration `yaml:"queue_interval"`
	DailyCron         string        `yaml:"daily_cron"`
	CleanupCron       string        `yaml:"cleanup_cron"`
	ExpiryWarningDays int           `yaml:"expiry_warning_days"`
	CleanupAfter      time.Duration `yaml:"cleanup_after"`
	NotifyWorkers     int           `yaml:"notify_workers"`
}

type SecurityConfig struct {
	EncryptionKey string        `yaml:"encryption_key" env:"KHM_ENCRYPTION_KEY"`
	JWTSecret     string        `yaml:"jwt_secret" env:"KHM_JWT_SECRET"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	LoginLimit    int           `yaml:"login_limit"`
	LoginWindow   time.Duration `yaml:"login_window"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Tax       TaxConfig       `yaml:"tax"`
	Site      SiteConfig      `yaml:"site"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A .env file next to the binary is
// loaded first when present.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML, overlays KHM_* environment variables and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Tax.Rate < 0 {
		return nil, errors.New("tax.rate must not be negative")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Stripe.Tolerance <= 0 {
		cfg.Stripe.Tolerance = 5 * time.Minute
	}
	if cfg.Stripe.Environment == "" {
		cfg.Stripe.Environment = "production"
	}

	if cfg.Site.Currency == "" {
		cfg.Site.Currency = "USD"
	}
	if cfg.Site.Locale == "" {
		cfg.Site.Locale = "en_US"
	}

	if cfg.Email.MaxRetries <= 0 {
		cfg.Email.MaxRetries = 3
	}
	if cfg.Email.RetryDelay <= 0 {
		cfg.Email.RetryDelay = 5 * time.Minute
	}
	if cfg.Email.BatchSize <= 0 {
		cfg.Email.BatchSize = 10
	}
	if cfg.Email.LockTTL <= 0 {
		cfg.Email.LockTTL = 5 * time.Minute
	}
	if cfg.Email.SendTimeout <= 0 {
		cfg.Email.SendTimeout = 30 * time.Second
	}
	if cfg.Email.RelayHost == "" {
		cfg.Email.RelayHost = "localhost"
	}
	if cfg.Email.RelayPort == 0 {
		cfg.Email.RelayPort = 25
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = cfg.Site.AdminEmail
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = cfg.Site.Name
	}

	if cfg.Scheduler.QueueInterval <= 0 {
		cfg.Scheduler.QueueInterval = time.Minute
	}
	if cfg.Scheduler.DailyCron == "" {
		cfg.Scheduler.DailyCron = "0 3 * * *"
	}
	if cfg.Scheduler.CleanupCron == "" {
		cfg.Scheduler.CleanupCron = "30 3 * * *"
	}
	if cfg.Scheduler.ExpiryWarningDays == 0 {
		cfg.Scheduler.ExpiryWarningDays = 7
	}
	if cfg.Scheduler.CleanupAfter <= 0 {
		cfg.Scheduler.CleanupAfter = 30 * 24 * time.Hour
	}
	if cfg.Scheduler.NotifyWorkers <= 0 {
		cfg.Scheduler.NotifyWorkers = 4
	}

	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 30 * time.Minute
	}
	if cfg.Security.LoginLimit <= 0 {
		cfg.Security.LoginLimit = 10
	}
	if cfg.Security.LoginWindow <= 0 {
		cfg.Security.LoginWindow = time.Minute
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
