package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/PriceTracker/internal/view/authscreen"
	"github.com/utafrali/PriceTracker/pkg/health"
	"github.com/utafrali/PriceTracker/pkg/middleware"
)

// serviceName labels HTTP metrics and spans.
const serviceName = "pricetracker"

// appearanceMaxAge is how long clients may cache the sign-in appearance.
const appearanceMaxAge = 300

// RouterConfig carries the router's dependencies.
type RouterConfig struct {
	Auth        AuthService
	Dashboards  Dashboards
	Appearance  authscreen.Appearance
	Health      *health.Handler
	RateLimiter *middleware.RateLimiter
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all price tracker routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.Auth, cfg.Dashboards, cfg.Appearance, logger)
	dashboardHandler := NewDashboardHandler(cfg.Dashboards, logger)
	requireAuth := middleware.Auth(cfg.Auth.ValidateToken, false)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.CacheControl(appearanceMaxAge)).Get("/appearance", authHandler.Appearance)

			r.Group(func(r chi.Router) {
				r.Use(middleware.NoStore)
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.NoStore)
				r.Use(requireAuth)
				r.Use(middleware.RequestLogger(logger))
				r.Get("/me", authHandler.Me)
				r.Post("/signout", authHandler.SignOut)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.NoStore)

			// EventSource cannot set headers, so the stream also accepts
			// ?access_token=.
			r.With(middleware.Auth(cfg.Auth.ValidateToken, true), middleware.RequestLogger(logger)).
				Get("/events", dashboardHandler.Events)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(middleware.RequestLogger(logger))

				r.Get("/", dashboardHandler.Get)
				r.Post("/reload", dashboardHandler.Reload)
				r.Post("/products", dashboardHandler.AddProduct)
				r.Post("/products/{id}/wishlist", dashboardHandler.ToggleWishlist)
				r.Post("/products/{id}/image-error", dashboardHandler.ImageError)
				r.Get("/products/{id}/history", dashboardHandler.History)
				r.Delete("/history", dashboardHandler.CloseHistory)
			})
		})
	})

	return r
}
