package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chirpline/backend/internal/api"
	"github.com/chirpline/backend/internal/audit"
	"github.com/chirpline/backend/internal/auth"
	"github.com/chirpline/backend/internal/config"
	"github.com/chirpline/backend/internal/realtime"
	"github.com/chirpline/backend/internal/storage/postgres"
	"github.com/chirpline/backend/pkg/logger"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

func main() {
	// Local/dev env files; production relies on real env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Logger isn't up yet; this is the one place a bare log is acceptable.
		println("config_load_failed:", err.Error())
		os.Exit(1)
	}

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.Env,
		})
		if err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_pool_create_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	userRepo := postgres.NewUserRepository(pool)
	conversationRepo := postgres.NewConversationRepository(pool)
	refreshStore := postgres.NewRefreshStore(pool)

	tokenProvider, err := auth.NewJWTProvider(cfg.JWTPrivateKeyPEM, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Error("jwt_provider_init_failed", "error", err)
		os.Exit(1)
	}
	hasher := auth.NewBcryptHasher()
	auditLogger := audit.NewDBLogger(pool, log)

	// Realtime fabric: registry (E) + router (F) run for the process
	// lifetime, independent of any single connection.
	registry := realtime.NewRegistry(conversationRepo)
	metrics := realtime.NewMetrics()
	router := realtime.NewRouter(registry, metrics, log)
	go router.Run(ctx)

	notifier := realtime.NewNotifier(router)
	realtimeEndpoint := realtime.NewEndpoint(registry, router, conversationRepo, metrics, log).
		WithTimeouts(cfg.WebsocketPingPeriod, cfg.WebsocketReadTimeout)

	authService := auth.NewAuthService(
		auth.AuthConfig{RefreshTokenPepper: cfg.RefreshTokenPepper},
		userRepo,
		refreshStore,
		hasher,
		tokenProvider,
		auditLogger,
		notifier,
	)
	verifier := auth.NewVerifier(tokenProvider, userRepo)

	server := api.NewServer(api.ServerConfig{
		Pool:               pool,
		Auth:               authService,
		Verifier:           verifier,
		RealtimeEndpoint:   realtimeEndpoint,
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		pool.Close()
		log.Info("database_pool_closed")
		log.Info("server_shutdown_complete")
	}
}
