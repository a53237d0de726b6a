package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 168*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.ResetTTL != time.Hour {
		t.Fatalf("unexpected reset ttl: %v", cfg.ResetTTL)
	}
	if cfg.JWTIssuer != "authcore" || cfg.JWTAudience != "authcore-clients" {
		t.Fatalf("unexpected issuer/audience: %s/%s", cfg.JWTIssuer, cfg.JWTAudience)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "s")
	t.Setenv("AUTHCORE_ACCESS_TTL", "5m")
	t.Setenv("AUTHCORE_RATE_LIMIT_RPS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("override not applied: %v", cfg.AccessTTL)
	}
	if cfg.RateLimitPerSecond != 3 {
		t.Fatalf("override not applied: %d", cfg.RateLimitPerSecond)
	}
}
