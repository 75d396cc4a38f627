package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	httpHandlers "github.com/JeanGrijp/waitlist-ratelimit/internal/adapters/http/handlers"
	httpMiddleware "github.com/JeanGrijp/waitlist-ratelimit/internal/adapters/http/middleware"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/adapters/logging"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/adapters/storage/memory"
	redisstorage "github.com/JeanGrijp/waitlist-ratelimit/internal/adapters/storage/redis"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/config"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/ports"
	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/services"
)

const (
	serviceName    = "waitlist-api"
	requestTimeout = 30 * time.Second
	corsMaxAge     = 24 * 60 * 60
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Server.Env)
	slog.SetDefault(logger)

	instanceID := uuid.NewString()
	logger = logger.With("instance", instanceID)

	local := memory.New(cfg.RateLimiter.LocalCapacity, ports.SystemClock{})

	shared, closeFn, err := initSharedStore(cfg.Redis, instanceID, logging.Service(logger, "redis"))
	if err != nil {
		logger.Error("failed to init shared store", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	limiter, err := services.NewRateLimiterService(local, shared, services.Config{
		DefaultRule:   cfg.RateLimiter.Rules[domain.ScopeGlobal],
		Rules:         cfg.RateLimiter.Rules,
		SharedTimeout: cfg.Redis.CommandTimeout,
		Observer:      logging.NewFailureObserver(logging.Service(logger, "security"), logging.ObserverOptions{}),
	})
	if err != nil {
		logger.Error("failed to create limiter", "error", err)
		os.Exit(1)
	}

	health := httpHandlers.HealthHandler{
		Service:  serviceName,
		Version:  cfg.Server.Version,
		Instance: instanceID,
		Local:    local,
	}
	if checker, ok := shared.(ports.HealthChecker); ok {
		health.Shared = checker
	}

	r := newRouter(cfg, limiter, health, logging.Service(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "env", cfg.Server.Env, "shared_store", shared != nil)
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func newRouter(cfg config.Config, limiter ports.RateLimiter, health httpHandlers.HealthHandler, logger *slog.Logger) http.Handler {
	resolver := httpMiddleware.IdentityResolver{
		TrustForwarded: cfg.Identity.TrustForwarded,
		PlatformHeader: cfg.Identity.PlatformHeader,
	}
	scoped := func(scope domain.Scope) func(http.Handler) http.Handler {
		return httpMiddleware.NewRateLimiterMiddleware(limiter, httpMiddleware.Options{
			Scope:    scope,
			Resolver: resolver,
			Logger:   logger,
		})
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(requestTimeout))
	r.Use(httpMiddleware.SecurityHeaders(cfg.Server.Production()))

	r.Get("/", health.Liveness)
	r.Get("/health", health.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			ExposedHeaders:   []string{domain.HeaderLimit, domain.HeaderRemaining, domain.HeaderReset},
			MaxAge:           corsMaxAge,
		}))
		r.Use(scoped(domain.ScopeGlobal))
		r.With(httpMiddleware.BodyLimit(httpMiddleware.DefaultBodyLimit), scoped(domain.ScopeWaitlist)).Post("/waitlist", httpHandlers.Accepted)
		r.With(scoped(domain.ScopeAdminLogin)).Post("/admin/login", httpHandlers.Accepted)
	})

	return r
}

// initSharedStore devolve nil quando o Redis não está habilitado; o limiter usa
// apenas o store local nesse caso.
func initSharedStore(cfg config.RedisConfig, instanceID string, logger *slog.Logger) (ports.CounterStore, func(), error) {
	if !cfg.Enabled {
		logger.Info("shared store disabled, using local rate limiting only")
		return nil, func() {}, nil
	}

	storage, err := redisstorage.New(redisstorage.Config{
		URL:            cfg.URL,
		Prefix:         cfg.Prefix,
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		ClientName:     fmt.Sprintf("%s-%s", serviceName, instanceID),
	})
	if err != nil {
		return nil, nil, err
	}

	return storage, func() {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close redis storage", "error", err)
		}
	}, nil
}
