package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:          "postgres://localhost:5432/greenlane",
		PaymentWebhookSecret: "whsec_test_secret",
		QueueTriggerToken:    strings.Repeat("t", 32),
		CacheProvider:        "memory",
		CacheMemorySize:      4096,
		OrderNumberPrefix:    "GL",
		QueueBatchSize:       10,
		QueueMaxConcurrency:  3,
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := validConfig().validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_QueueTriggerTokenTooShort(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.QueueTriggerToken = "short"

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "QueueTriggerToken") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CacheProvider(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "memcached"

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "CacheProvider") || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CacheMemorySizeBounds(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheMemorySize = 4

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "CacheMemorySize") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TwilioCredentialsMustBePaired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "all set",
			mutate:  func(c *Config) { c.TwilioAccountSID = "AC123"; c.TwilioAuthToken = "tok"; c.TwilioFromNumber = "+15551234567" },
			wantErr: false,
		},
		{
			name:    "sid only",
			mutate:  func(c *Config) { c.TwilioAccountSID = "AC123" },
			wantErr: true,
		},
		{
			name:    "missing from number",
			mutate:  func(c *Config) { c.TwilioAccountSID = "AC123"; c.TwilioAuthToken = "tok" },
			wantErr: true,
		},
		{
			name:    "none set",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_EmailFromRequiredWithResendKey(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ResendAPIKey = "re_test_key"

	if err := cfg.validate(); err == nil {
		t.Fatal("expected error, got nil")
	}

	cfg.EmailFrom = "orders@example.com"
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChannelToggles(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.EmailEnabled() || cfg.SMSEnabled() {
		t.Fatal("channels should be disabled without credentials")
	}

	cfg.ResendAPIKey = "re_test_key"
	cfg.TwilioAccountSID = "AC123"
	if !cfg.EmailEnabled() || !cfg.SMSEnabled() {
		t.Fatal("channels should be enabled with credentials")
	}
}
