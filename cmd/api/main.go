// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Marketschool HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables (and .env when present).
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations. Any failure aborts before the listener opens.
//  6. Wire sessions, auth and data handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taibuivan/marketschool/internal/api"
	"github.com/taibuivan/marketschool/internal/auth"
	"github.com/taibuivan/marketschool/internal/motd"
	"github.com/taibuivan/marketschool/internal/platform/config"
	"github.com/taibuivan/marketschool/internal/platform/constants"
	"github.com/taibuivan/marketschool/internal/platform/migration"
	pgstore "github.com/taibuivan/marketschool/internal/platform/postgres"
	redisstore "github.com/taibuivan/marketschool/internal/platform/redis"
	"github.com/taibuivan/marketschool/internal/platform/sec"
	"github.com/taibuivan/marketschool/internal/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("secure_cookies", cfg.SecureCookies()),
		slog.Bool("oidc_enabled", cfg.OIDCIssuerURL != ""),
		slog.Int("trusted_proxies", len(cfg.TrustedProxies)),
	)

	// Bounded so that misconfiguration fails fast instead of hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), constants.StartupTimeout)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_failed", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, log), "run migrations")

	// Root context for background workers; cancelled on shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// ── 6. Sessions ───────────────────────────────────────────────────────
	signer, err := sec.NewCookieSigner(cfg.CookieSecret, constants.SessionCookieIssuer)
	must(log, err, "initialize cookie signer")

	hasher, err := sec.NewTokenHasher(cfg.SessionSecret)
	must(log, err, "initialize session hasher")

	sessionStore := session.NewPostgresStore(pool)
	sessionManager := session.NewManager(sessionStore, signer, hasher, session.Options{
		Secure: cfg.SecureCookies(),
	})

	go session.NewSweeper(sessionStore, cfg.SessionSweepInterval, log).Run(rootCtx)

	// ── 7. Auth ───────────────────────────────────────────────────────────
	var identity auth.IdentityVerifier = auth.PassthroughVerifier{}
	if cfg.OIDCIssuerURL != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(startupCtx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		must(log, err, "initialize oidc verifier")
		identity = oidcVerifier
	}

	limiter := auth.NewLoginLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginWindow)
	authHandler := auth.NewHandler(auth.NewService(sessionManager, identity, limiter))

	// ── 8. Data Endpoints ─────────────────────────────────────────────────
	motdHandler := motd.NewHandler(motd.NewService(motd.NewPostgresRepository(pool)))

	// ── 9. Health ─────────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	server := api.NewServer(rootCtx, cfg, log, sessionManager.Middleware, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Motd:      motdHandler,
	})

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_failed", slog.Any("error", err))
	}

	log.Info("server_shutting_down", slog.Duration("timeout", constants.ShutdownTimeout))

	rootCancel()
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("server_shutdown_failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// newLogger builds the JSON logger with the application attribute attached.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned and
// handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
