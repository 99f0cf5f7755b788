package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend, got %s", cfg.StoreBackend)
	}
	if cfg.SessionSecret == "" {
		t.Fatalf("expected dev session secret")
	}
	if cfg.SessionTTL != defaultSessionTTL || cfg.LoginAttempts != defaultLoginAttempts {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("LOGIN_ATTEMPTS_PER_MINUTE", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s shutdown, got %s", cfg.ShutdownPeriod)
	}
	if cfg.IdempotencyTTL != 90*time.Minute {
		t.Fatalf("expected 90m idempotency ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.SessionTTL != 2*time.Hour || cfg.LoginAttempts != 9 {
		t.Fatalf("unexpected session settings: %+v", cfg)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":      {"APP_ENV": "development", "STORE_BACKEND": "mongo"},
		"postgres without url": {"APP_ENV": "development", "STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"redis without url":    {"APP_ENV": "development", "STORE_BACKEND": "redis", "REDIS_URL": ""},
		"prod without secret":  {"APP_ENV": "production", "STORE_BACKEND": "memory", "SESSION_SECRET": ""},
		"bad ttl":              {"APP_ENV": "development", "SESSION_TTL": "forever"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
