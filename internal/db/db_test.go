package db

import (
	"testing"
	"time"
)

func TestPoolConfig(t *testing.T) {
	t.Parallel()

	cfg, err := poolConfig("postgres://localhost:5432/greenlane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxConns != poolMaxConns {
		t.Errorf("MaxConns = %d, want %d", cfg.MaxConns, poolMaxConns)
	}
	if cfg.MinConns != poolMinConns {
		t.Errorf("MinConns = %d, want %d", cfg.MinConns, poolMinConns)
	}
	if cfg.MaxConnLifetime != 30*time.Minute {
		t.Errorf("MaxConnLifetime = %v", cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime != 5*time.Minute {
		t.Errorf("MaxConnIdleTime = %v", cfg.MaxConnIdleTime)
	}
	if cfg.ConnConfig.ConnectTimeout != poolConnectTimeout {
		t.Errorf("ConnectTimeout = %v", cfg.ConnConfig.ConnectTimeout)
	}
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := poolConfig("postgres://bad url\n"); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}
