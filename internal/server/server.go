// Package server is the composition root: it opens the database, builds the
// services and handlers, and mounts them on a chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → sqlite.DB (implements every repository interface + Transactor)
//	  → service.{Credential,Category,Entry}Service
//	  → handler.{Auth,Category,Entry,Health}Handler
//	  → chi routes
//
// Handlers never touch the database and services never touch HTTP.
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
	"github.com/redis/go-redis/v9"

	"github.com/sakif/knowledge-library/internal/auth"
	"github.com/sakif/knowledge-library/internal/config"
	"github.com/sakif/knowledge-library/internal/handler"
	"github.com/sakif/knowledge-library/internal/middleware"
	sqliteRepo "github.com/sakif/knowledge-library/internal/repository/sqlite"
	"github.com/sakif/knowledge-library/internal/service"
)

// Server owns the router and every resource that must be released on
// shutdown: the database and, when configured, the Redis client.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client
}

type options struct {
	passwords *auth.PasswordService
	limiter   auth.Limiter
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

// WithPasswordService replaces the bcrypt service, e.g. with a cheap cost in tests.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(o *options) { o.passwords = p }
}

// WithLimiter replaces the login rate limiter.
func WithLimiter(l auth.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// New opens the database and wires all routes.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqliteRepo.New(cfg.Database.Path, sqliteRepo.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if o.passwords == nil {
		o.passwords = auth.NewPasswordService(cfg.Auth.BcryptCost)
	}
	if o.limiter == nil {
		o.limiter = s.newLimiter()
	}

	if err := s.setupRoutes(o); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// newLimiter prefers a shared Redis counter so the login limit holds across
// replicas, and falls back to the in-process bucket when Redis is not
// configured or does not answer.
func (s *Server) newLimiter() auth.Limiter {
	limits := auth.LimitConfig{
		Burst:        s.config.RateLimit.Burst,
		RefillPerMin: s.config.RateLimit.RefillPerMin,
	}

	if s.config.Redis.Addr == "" {
		return auth.NewMemoryLimiter(limits)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.config.Redis.Addr,
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis unreachable, using in-memory login limiter",
			slog.String("addr", s.config.Redis.Addr),
			slog.String("error", err.Error()),
		)
		_ = client.Close()
		return auth.NewMemoryLimiter(limits)
	}

	s.redis = client
	s.logger.Info("login limiter backed by redis", slog.String("addr", s.config.Redis.Addr))
	return auth.NewRedisLimiter(client, limits)
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET    /healthz
//	POST   /api/setup
//	POST   /api/auth/login
//	POST   /api/auth/logout
//	GET    /api/auth/me              [auth]
//	GET    /api/categories           [auth]
//	POST   /api/categories           [auth]
//	PUT    /api/categories/{id}      [auth]
//	DELETE /api/categories/{id}      [auth]
//	GET    /api/entries              [auth] ?search=&categoryId=
//	POST   /api/entries              [auth]
//	GET    /api/entries/{id}         [auth]
//	PUT    /api/entries/{id}         [auth]
//	DELETE /api/entries/{id}         [auth]
//
// MIDDLEWARE ORDER: RequestID, RealIP (only behind a trusted proxy), Logger,
// Recoverer, Timeout. The timeout bounds every request so a locked database
// surfaces as 503 instead of hanging.
func (s *Server) setupRoutes(o options) error {
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return err
	}

	s.router.Use(chimiddleware.RequestID)
	if s.config.Server.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		s.router.Use(chimiddleware.Timeout(s.config.Server.RequestTimeout))
	}

	credentialService := service.NewCredentialService(s.db, o.passwords, tokens, s.logger)
	categoryService := service.NewCategoryService(s.db, s.db, s.logger)
	entryService := service.NewEntryService(s.db, s.db, s.db, s.logger)

	authHandler := handler.NewAuthHandler(credentialService, o.limiter, handler.AuthOptions{
		TokenTTL:     tokens.TTL(),
		CookieSecure: s.config.Auth.CookieSecure,
		AllowSetup:   s.config.Auth.AllowSetup,
	}, s.logger)
	categoryHandler := handler.NewCategoryHandler(categoryService, s.logger)
	entryHandler := handler.NewEntryHandler(entryService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/setup", authHandler.HandleSetup)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/auth/me", authHandler.HandleMe)

			r.Get("/categories", categoryHandler.HandleList)
			r.Post("/categories", categoryHandler.HandleCreate)
			r.Put("/categories/{id}", categoryHandler.HandleUpdate)
			r.Delete("/categories/{id}", categoryHandler.HandleDelete)

			r.Get("/entries", entryHandler.HandleList)
			r.Post("/entries", entryHandler.HandleCreate)
			r.Get("/entries/{id}", entryHandler.HandleGetByID)
			r.Put("/entries/{id}", entryHandler.HandleUpdate)
			r.Delete("/entries/{id}", entryHandler.HandleDelete)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up to
// the configured shutdown timeout and closes the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.Database.Path),
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

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
