// Package config loads the process configuration once at startup. Values
// are injected into the services that need them; nothing reads mutable
// global settings at request time.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment-backed configuration.
type Config struct {
	HTTPAddr string `env:"AUTHCORE_HTTP_ADDR" envDefault:":8080"`
	BaseURL  string `env:"AUTHCORE_BASE_URL" envDefault:"http://localhost:8080"`

	// Empty DSN selects the in-memory store (development mode).
	PostgresDSN string `env:"AUTHCORE_PG_DSN"`

	RedisAddr     string `env:"AUTHCORE_REDIS_ADDR"`
	RedisPassword string `env:"AUTHCORE_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHCORE_REDIS_DB" envDefault:"0"`

	JWTSecret   string        `env:"AUTHCORE_JWT_SECRET"`
	JWTIssuer   string        `env:"AUTHCORE_JWT_ISSUER" envDefault:"authcore"`
	JWTAudience string        `env:"AUTHCORE_JWT_AUDIENCE" envDefault:"authcore-clients"`
	AccessTTL   time.Duration `env:"AUTHCORE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"AUTHCORE_REFRESH_TTL" envDefault:"168h"`
	SessionTTL  time.Duration `env:"AUTHCORE_SESSION_TTL" envDefault:"15m"`
	ResetTTL    time.Duration `env:"AUTHCORE_RESET_TTL" envDefault:"1h"`

	SMTPHost     string `env:"AUTHCORE_SMTP_HOST"`
	SMTPPort     int    `env:"AUTHCORE_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"AUTHCORE_SMTP_USER"`
	SMTPPassword string `env:"AUTHCORE_SMTP_PASSWORD"`
	MailFrom     string `env:"AUTHCORE_MAIL_FROM"`
	MailFromName string `env:"AUTHCORE_MAIL_FROM_NAME" envDefault:"AuthCore"`

	RateLimitPerSecond int `env:"AUTHCORE_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst     int `env:"AUTHCORE_RATE_LIMIT_BURST" envDefault:"20"`
}

// Load parses the environment and validates required settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: AUTHCORE_JWT_SECRET is required")
	}
	return cfg, nil
}
