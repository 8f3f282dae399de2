package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	StorageDriver          string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL            string `env:"DATABASE_URL"`
	RedisURL               string `env:"REDIS_URL,required"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	AdminUsername          string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash      string `env:"ADMIN_PASSWORD_HASH"`
	SMTPHost               string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort               int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPUsername           string `env:"SMTP_USERNAME"`
	SMTPPassword           string `env:"SMTP_PASSWORD"`
	MailFrom               string `env:"MAIL_FROM" envDefault:"matcher@localhost"`
	MailSubject            string `env:"MAIL_SUBJECT" envDefault:"You have been paired!"`
	NotifyWorkers          int    `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyMaxAttempts      int    `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	SubmitRateLimitPerMin  int    `env:"SUBMIT_RATE_LIMIT_PER_MIN" envDefault:"10"`
	IdentityCacheTTLSecond int    `env:"IDENTITY_CACHE_TTL_SECONDS" envDefault:"300"`
	GitHubAPIURL           string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// MailConfig carries the outbound relay settings handed to the mail sender.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// AdminCredentials is the basic-auth pair guarding the admin routes.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

func (c *Config) Mail() MailConfig {
	return MailConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
		Subject:  c.MailSubject,
	}
}

func (c *Config) Admin() AdminCredentials {
	return AdminCredentials{
		Username:     c.AdminUsername,
		PasswordHash: c.AdminPasswordHash,
	}
}

func (c *Config) IdentityCacheTTL() time.Duration {
	return time.Duration(c.IdentityCacheTTLSecond) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StorageDriverPostgres)
		}
	case StorageDriverMemory:
		if isProduction {
			return fmt.Errorf("STORAGE_DRIVER=%s is not allowed in production", StorageDriverMemory)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (expected %s or %s)", c.StorageDriver, StorageDriverPostgres, StorageDriverMemory)
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive")
	}
	if c.NotifyMaxAttempts <= 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive")
	}

	if isProduction {
		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: admin routes are disabled")
		}
		if c.SMTPUsername == "" {
			log.Warn().Msg("SMTP_USERNAME is empty in production: relay must accept unauthenticated mail")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
