// Package config loads service configuration from environment variables with
// sane defaults. Every knob carries a HIMMEL_ prefix so the service can run
// alongside other processes on shared hosts.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration of the API service.
type Config struct {
	Env  string     `env:"HIMMEL_ENV" env-default:"local"`
	HTTP HTTPConfig
	Auth AuthConfig
	DB   DBConfig
	SMTP SMTPConfig
	Rate RateConfig
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Host string `env:"HIMMEL_HTTP_HOST" env-default:"0.0.0.0"`
	Port string `env:"HIMMEL_HTTP_PORT" env-default:"8080"`

	// SecureCookies marks auth cookies Secure; enable behind TLS.
	SecureCookies bool `env:"HIMMEL_SECURE_COOKIES" env-default:"false"`
}

// Addr returns the listener address in host:port form.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig holds token issuance and credential parameters.
type AuthConfig struct {
	JWTSecret       string        `env:"HIMMEL_JWT_SECRET" env-required:"true"`
	Issuer          string        `env:"HIMMEL_JWT_ISSUER" env-default:"himmel-api"`
	AccessTokenTTL  time.Duration `env:"HIMMEL_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"HIMMEL_REFRESH_TOKEN_TTL" env-default:"168h"`
	ResetTokenTTL   time.Duration `env:"HIMMEL_RESET_TOKEN_TTL" env-default:"1h"`
	BcryptCost      int           `env:"HIMMEL_BCRYPT_COST" env-default:"10"`

	// FrontendURL is the base used when composing password-reset links.
	FrontendURL string `env:"HIMMEL_FRONTEND_URL" env-default:"http://localhost:3001"`
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	DSN string `env:"HIMMEL_PG_DSN" env-required:"true"`
}

// SMTPConfig holds the outbound mail transport. Host left empty disables
// dispatch (notifications are logged and dropped).
type SMTPConfig struct {
	Host string `env:"HIMMEL_SMTP_HOST" env-default:""`
	Port int    `env:"HIMMEL_SMTP_PORT" env-default:"587"`
	User string `env:"HIMMEL_SMTP_USER" env-default:""`
	Pass string `env:"HIMMEL_SMTP_PASS" env-default:""`
	From string `env:"HIMMEL_SMTP_FROM" env-default:"Himmel <no-reply@himmel.app>"`
}

// RateConfig holds request throttling parameters.
type RateConfig struct {
	Burst  int `env:"HIMMEL_RATE_BURST" env-default:"50"`
	PerSec int `env:"HIMMEL_RATE_PER_SEC" env-default:"25"`

	// Sign-in attempts per identifier; bounds brute force without lockout.
	SignInBurst  int `env:"HIMMEL_SIGNIN_BURST" env-default:"10"`
	SignInPerMin int `env:"HIMMEL_SIGNIN_PER_MIN" env-default:"6"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load with a panic on error; intended for main.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: HIMMEL_JWT_SECRET is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		return errors.New("config: access token TTL must be shorter than refresh token TTL")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return errors.New("config: bcrypt cost out of range")
	}
	return nil
}
