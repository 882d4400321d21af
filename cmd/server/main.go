// Package main is the entry point for the blockhub API server.
//
// main stays minimal. It:
//  1. reads configuration (environment, optionally .env)
//  2. creates the logger, database, object storage and OAuth client
//  3. hands them to internal/server and starts it
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/config"
	"github.com/sakif/blockhub/internal/repository/sqldb"
	"github.com/sakif/blockhub/internal/server"
	"github.com/sakif/blockhub/internal/storage"
	"github.com/sakif/blockhub/internal/storage/miniobucket"
	"github.com/sakif/blockhub/internal/storage/s3bucket"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// === 3. DATABASE ===
	if cfg.Database.Driver == sqldb.DriverSQLite && cfg.Database.URL != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.URL)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dbDir, err)
		}
	}

	store, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}

	// === 4. OBJECT STORAGE ===
	files, err := newFileStore(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return err
	}

	// === 5. CREATE AND START THE SERVER ===
	deps := server.Deps{Store: store, Files: files}
	if cfg.DiscordEnabled() {
		deps.Discord = auth.NewDiscordProvider(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.CallbackURL)
	} else {
		logger.Warn("DISCORD_CLIENT_ID or DISCORD_CLIENT_SECRET not set, login is disabled")
	}
	if cfg.AuthKey == "" {
		logger.Warn("AUTH_KEY not set, /auth/me and /auth/set-cookie will reject every request")
	}

	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		FrontendURL:    cfg.FrontendURL,
		AuthKey:        cfg.AuthKey,
		SessionSecret:  cfg.Session.Secret,
		TokenTTL:       cfg.Session.TokenTTL,
		IdleTTL:        cfg.Session.IdleTTL,
		CookieName:     cfg.Session.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, deps, logger)
	if err != nil {
		store.Close()
		return err
	}

	// Start blocks until SIGINT/SIGTERM and closes the store on the way out.
	return srv.Start()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newFileStore picks the object storage backend. Without a bucket every
// upload fails with "file storage is not configured".
func newFileStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if !cfg.StorageEnabled() {
		logger.Warn("object storage not configured, uploads are disabled")
		return storage.Disabled{}, nil
	}

	sc := cfg.Storage
	switch sc.Backend {
	case "s3":
		b, err := s3bucket.New(ctx, s3bucket.Options{
			Endpoint:  sc.Endpoint,
			Region:    sc.Region,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Bucket:    sc.Bucket,
			PublicURL: sc.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 storage: %w", err)
		}
		logger.Info("object storage ready", slog.String("backend", "s3"), slog.String("bucket", sc.Bucket))
		return b, nil
	default:
		b, err := miniobucket.New(miniobucket.Options{
			Endpoint:  sc.Endpoint,
			Region:    sc.Region,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Bucket:    sc.Bucket,
			UseSSL:    sc.UseSSL,
			PublicURL: sc.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio storage: %w", err)
		}
		logger.Info("object storage ready", slog.String("backend", "minio"), slog.String("bucket", sc.Bucket))
		return b, nil
	}
}
