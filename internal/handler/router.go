package handler

import (
	"net/http"
	"time"

	"kksr-counter/internal/container"
	"kksr-counter/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const publicRouteTimeout = 10 * time.Second

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	services := c.Services

	// Create router
	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.AccessLog(log))
	r.Use(chiMiddleware.Compress(5))

	// Create handlers
	healthHandler := NewHealthHandler(c)
	pageViewHandler := NewPageViewHandler(services.Engine, log.Logger)
	objectHandler := NewObjectHandler(c.Repositories.Object, services.Counters, services.Cache, services.Seeder, log.Logger)
	adminHandler := NewAdminHandler(services, cfg.RegenerateTimeout, log.Logger)

	// Health check
	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		// Content host events and widget reads
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(publicRouteTimeout))

			r.With(c.Sessions.Middleware).Post("/pageview", pageViewHandler.Record)

			r.Route("/objects/{objectID}", func(r chi.Router) {
				r.Get("/counters", objectHandler.GetCounters)
				r.Post("/saved", objectHandler.Saved)
			})
		})

		// Admin routes. Access control is left to the deployment (private network or gateway)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/settings", adminHandler.GetSettings)
			r.Put("/settings", adminHandler.UpdateSettings)
			r.Delete("/settings", adminHandler.ResetSettings)
			r.Post("/regenerate", adminHandler.Regenerate)
			r.Delete("/throttle", adminHandler.PurgeThrottle)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
