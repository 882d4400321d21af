// Package config loads runtime settings from the environment.
//
// Every setting is a struct field with an `env` tag; groups share a prefix
// through `envPrefix` (DISCORD_, SESSION_, DB_, STORAGE_). A .env file in the
// working directory is read first if present, so local development does not
// need exported variables. Real environment variables always win over .env.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Port           int    `env:"PORT" envDefault:"3000"`
		LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
		FrontendURL    string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
		AuthKey        string `env:"AUTH_KEY"`
		MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`

		Discord  DiscordConfig  `envPrefix:"DISCORD_"`
		Session  SessionConfig  `envPrefix:"SESSION_"`
		Database DatabaseConfig `envPrefix:"DB_"`
		Storage  StorageConfig  `envPrefix:"STORAGE_"`
	}

	DiscordConfig struct {
		ClientID     string `env:"CLIENT_ID"`
		ClientSecret string `env:"CLIENT_SECRET"`
		CallbackURL  string `env:"CALLBACK_URL" envDefault:"http://localhost:3000/auth/discord/callback"`
	}

	SessionConfig struct {
		Secret       string        `env:"SECRET"`
		TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
		IdleTTL      time.Duration `env:"IDLE_TTL" envDefault:"24h"`
		CookieName   string        `env:"COOKIE" envDefault:"user"`
		CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`
	}

	DatabaseConfig struct {
		Driver string `env:"DRIVER" envDefault:"sqlite"`
		URL    string `env:"URL" envDefault:"data/blockhub.db"`
	}

	StorageConfig struct {
		Backend   string `env:"BACKEND" envDefault:"minio"`
		Endpoint  string `env:"ENDPOINT"`
		Region    string `env:"REGION" envDefault:"us-east-1"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
		PublicURL string `env:"PUBLIC_URL"`
	}
)

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only and validates the result.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	if c.Session.TokenTTL <= 0 || c.Session.IdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TOKEN_TTL and SESSION_IDLE_TTL must be positive"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver))
	}
	switch c.Storage.Backend {
	case "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be minio or s3, got %q", c.Storage.Backend))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// StorageEnabled reports whether enough is configured to talk to a bucket.
// The s3 backend can resolve AWS endpoints itself; minio needs one.
func (c *Config) StorageEnabled() bool {
	if c.Storage.Bucket == "" {
		return false
	}
	return c.Storage.Backend == "s3" || c.Storage.Endpoint != ""
}

// DiscordEnabled reports whether the OAuth client is configured.
func (c *Config) DiscordEnabled() bool {
	return c.Discord.ClientID != "" && c.Discord.ClientSecret != ""
}

// SlogLevel maps LOG_LEVEL onto slog levels. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
