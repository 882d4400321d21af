// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it connects handlers, middleware and
// routes, and owns the server lifecycle. cmd/server builds the backing
// resources (database, object storage, OAuth client) and hands them in.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/handler"
	"github.com/sakif/blockhub/internal/middleware"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository/sqldb"
	"github.com/sakif/blockhub/internal/service"
	"github.com/sakif/blockhub/internal/storage"
)

// Config holds the settings the router and HTTP server need.
type Config struct {
	Port           int
	FrontendURL    string
	AuthKey        string
	SessionSecret  string
	TokenTTL       time.Duration
	IdleTTL        time.Duration
	CookieName     string
	CookieSecure   bool
	MaxUploadBytes int64
}

// Deps are the resources the server is built on. Discord may be nil, in
// which case the login routes answer 503.
type Deps struct {
	Store   *sqldb.Store
	Files   storage.Store
	Discord handler.IdentityProvider
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database store: Start closes it after the HTTP server
// has drained.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	store  *sqldb.Store
}

// New builds the service layer on top of deps and wires every route.
//
// DEPENDENCY CHAIN:
//
//	sqldb.Store   → implements every repository interface
//	AuthService   ← users, sessions, tokens
//	ContentService ← content repository, object storage
//	handlers      ← services
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("server: a database store is required")
	}
	if deps.Files == nil {
		deps.Files = storage.Disabled{}
	}

	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  deps.Store,
	}

	authService := service.NewAuthService(deps.Store, deps.Store, tokens, cfg.IdleTTL, logger)
	contentService := service.NewContentService(deps.Store, deps.Files, logger)

	s.setupRoutes(authService, contentService, deps.Discord)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz
//	GET    /auth/discord/login          (alias /auth/discord)
//	GET    /auth/discord/callback
//	POST   /auth/logout
//	GET    /auth/me                     [x-auth-key] [session]
//	POST   /auth/set-cookie             [x-auth-key]
//	GET    /user?queryId=
//	GET    /{maps|blocks}
//	GET    /{maps|blocks}/search
//	GET    /{maps|blocks}/{id}
//	POST   /{maps|blocks}               [session]
//	PUT    /{maps|blocks}/{id}          [session]
//	DELETE /{maps|blocks}               [session]
//	POST   /{maps|blocks}/vote          [session]
//	POST   /blocks/upload               [session]
//	GET    /blocks/download/{fileName}
//
// MIDDLEWARE ORDER MATTERS: the request id is assigned first so the logger
// can record it, and Recoverer sits inside Logger so a panic is still logged
// as a 500.
func (s *Server) setupRoutes(authService *service.AuthService, contentService *service.ContentService, discord handler.IdentityProvider) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.AuthKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := auth.RequireAuth(authService, s.config.CookieName, s.logger)

	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	s.router.Get("/healthz", healthHandler.HandleHealth)

	authHandler := handler.NewAuthHandler(
		discord,
		authService,
		handler.CookieConfig{Name: s.config.CookieName, Secure: s.config.CookieSecure},
		s.config.FrontendURL,
		s.logger,
	)
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/discord", authHandler.HandleLogin)
		r.Get("/discord/login", authHandler.HandleLogin)
		r.Get("/discord/callback", authHandler.HandleCallback)
		r.Post("/logout", authHandler.HandleLogout)

		// Service-to-service routes, called by the frontend server.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuthKey(s.config.AuthKey))
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
			r.Post("/set-cookie", authHandler.HandleSetCookie)
		})
	})

	userHandler := handler.NewUserHandler(authService, s.logger)
	s.router.Get("/user", userHandler.HandleLookup)

	assetHandler := handler.NewAssetHandler(contentService, s.config.MaxUploadBytes, s.logger)

	for _, kind := range model.Kinds {
		h := handler.NewContentHandler(kind, contentService, s.config.MaxUploadBytes, s.logger)

		s.router.Route("/"+kind.Table(), func(r chi.Router) {
			r.Get("/", h.HandleList)
			r.Get("/search", h.HandleSearch)
			r.Get("/{id}", h.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", h.HandleCreate)
				r.Put("/{id}", h.HandleUpdate)
				r.Delete("/", h.HandleDelete)
				r.Post("/vote", h.HandleVote)
			})

			if kind == model.KindBlock {
				r.With(requireAuth).Post("/upload", assetHandler.HandleUpload)
				r.Get("/download/{fileName}", assetHandler.HandleDownload)
			}
		})
	}
}

// Start starts the HTTP server and handles graceful shutdown:
//  1. Stop accepting new connections on SIGINT/SIGTERM
//  2. Wait up to 30s for in-flight requests
//  3. Close the database
func (s *Server) Start() error {
	defer s.store.Close()

	// WriteTimeout leaves room for streaming downloads.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
