package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET,required" validate:"required"`
	QueueTriggerToken    string `env:"QUEUE_TRIGGER_TOKEN,required" validate:"required,min=16"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" validate:"required_with=ResendAPIKey,omitempty,email"`
	AdminEmail   string `env:"ADMIN_EMAIL" validate:"omitempty,email"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	CacheMemorySize       int    `env:"CACHE_MEMORY_SIZE" envDefault:"4096" validate:"min=16,max=1000000"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	OrderNumberPrefix string `env:"ORDER_NUMBER_PREFIX" envDefault:"GL" validate:"required,max=8"`

	QueueBatchSize      int `env:"QUEUE_BATCH_SIZE" envDefault:"10" validate:"min=1,max=100"`
	QueueMaxConcurrency int `env:"QUEUE_MAX_CONCURRENCY" envDefault:"3" validate:"min=1,max=20"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasSID := strings.TrimSpace(c.TwilioAccountSID) != ""
	hasToken := strings.TrimSpace(c.TwilioAuthToken) != ""
	hasFrom := strings.TrimSpace(c.TwilioFromNumber) != ""
	if hasSID != hasToken || hasSID != hasFrom {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set together")
	}

	if strings.TrimSpace(c.ResendAPIKey) != "" && strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
	}

	return nil
}

// EmailEnabled reports whether an email gateway is configured.
func (c *Config) EmailEnabled() bool {
	return strings.TrimSpace(c.ResendAPIKey) != ""
}

// SMSEnabled reports whether an SMS gateway is configured.
func (c *Config) SMSEnabled() bool {
	return strings.TrimSpace(c.TwilioAccountSID) != ""
}
