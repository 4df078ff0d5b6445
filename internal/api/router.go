package api

import (
	"log/slog"

	customMiddleware "github.com/chirpline/backend/internal/api/middleware"
	"github.com/chirpline/backend/internal/auth"
	"github.com/chirpline/backend/internal/realtime"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// Server wires the HTTP surface for the credential issuer, refresh store,
// session verifier and realtime endpoint into a single chi router.
type Server struct {
	Router *chi.Mux
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// ServerConfig carries the dependencies NewServer wires into routes.
type ServerConfig struct {
	Pool               *pgxpool.Pool
	Auth               *auth.AuthService
	Verifier           *auth.Verifier
	RealtimeEndpoint   *realtime.Endpoint
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

func NewServer(cfg ServerConfig) *Server {
	r := chi.NewRouter()

	// 1. Core middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// 2. Sentry (must run before panic recovery to capture panics).
	sentryHandler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
	})
	r.Use(sentryHandler.Handle)

	// 3. Logging & recovery.
	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	// 4. CORS & rate limiting.
	r.Use(customMiddleware.NewCORS(cfg.CORSAllowedOrigins))
	limiter := customMiddleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	r.Use(limiter.Middleware)

	authHandler := NewAuthHandler(cfg.Auth, cfg.Verifier, cfg.Logger)
	realtimeHandler := NewRealtimeHandler(cfg.RealtimeEndpoint)

	s := &Server{Router: r, Pool: cfg.Pool, Logger: cfg.Logger}
	r.Get("/health", s.HealthHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireAuth(cfg.Verifier))
				r.Get("/sessions", authHandler.GetSessions)
			})

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireSensitiveAuth(cfg.Verifier))
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireAuth(cfg.Verifier))
				r.Get("/ws", realtimeHandler.ServeWS)
			})
		})
	})

	r.Get("/.well-known/jwks.json", authHandler.GetJWKS)

	return s
}
