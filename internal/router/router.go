package router

import (
	"context"
	"net/http"

	"github.com/creatorhub/backend/internal/handler"
	appMiddleware "github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Log         *zap.Logger
	Auth        *service.AuthService
	Tiers       *service.TierService
	Billing     *service.BillingService
	Users       *service.UserService
	Sweeps      handler.SweepRunner
	Health      map[string]handler.Pinger
	CronSecret  string
	CORSOrigins []string
	// RateLimit enables the per-IP limiters.
	RateLimit bool
}

// New builds the router. ctx bounds the rate limiters' background cleanup.
func New(ctx context.Context, d Deps) http.Handler {
	profileHandler := handler.NewProfileHandler(d.Tiers)
	billingHandler := handler.NewBillingHandler(d.Billing)
	userHandler := handler.NewUserHandler(d.Users)
	adminHandler := handler.NewAdminHandler(d.Users)
	cronHandler := handler.NewCronHandler(d.Sweeps)
	healthHandler := handler.NewHealthHandler(d.Health)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery(d.Log))
	r.Use(appMiddleware.Logger(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	if d.RateLimit {
		r.Use(appMiddleware.NewRateLimiter(ctx, 20, 40).Middleware())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.JSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	// Health check and public routes (no auth)
	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/creators/{id}/tiers", profileHandler.ListTiers)

	// Scheduler trigger
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.CronAuth(d.CronSecret))
		r.Post("/api/cron/sweep", cronHandler.Sweep)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(d.Auth))

		r.Get("/api/me", profileHandler.Me)
		r.Put("/api/me/profile", profileHandler.Update)
		r.Delete("/api/tiers/{id}", profileHandler.DeleteTier)

		r.Get("/api/subscriptions", billingHandler.ListSubscriptions)
		r.Patch("/api/subscriptions/{id}", billingHandler.SetAutoRenew)
		r.Get("/api/wallet", billingHandler.Wallet)
		r.Get("/api/wallet/entries", billingHandler.Entries)

		// Money-moving routes
		r.Group(func(r chi.Router) {
			if d.RateLimit {
				r.Use(appMiddleware.StrictRateLimiter(ctx))
			}
			r.Post("/api/tiers/{id}/subscribe", billingHandler.Subscribe)
			r.Post("/api/balance/add", billingHandler.AddBalance)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAdmin(d.Log))
			r.Get("/api/admin/stats", adminHandler.GetStats)
			r.Get("/api/users", userHandler.List)
			r.Post("/api/users", userHandler.Create)
		})
	})

	return r
}
