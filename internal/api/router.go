package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmeyer/session-scribe/internal/api/handlers"
	"github.com/lmeyer/session-scribe/internal/monitors"
	"github.com/lmeyer/session-scribe/internal/screenshot"
	"github.com/lmeyer/session-scribe/internal/storage"
	"github.com/lmeyer/session-scribe/internal/timeline"
	"github.com/lmeyer/session-scribe/internal/websocket"
	"github.com/lmeyer/session-scribe/internal/writer"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(hub *websocket.Hub, bus *timeline.Bus, store *storage.Store, w *writer.Writer, tracker *monitors.WindowTracker, trigger *screenshot.Trigger) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration for local viewers
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	timelineHandler := handlers.NewTimelineHandler(bus, store, w, tracker, trigger)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Handle("/metrics", promhttp.Handler())

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for the live event stream
		r.Get("/ws", wsHandler.Serve)

		r.Get("/status", timelineHandler.GetStatus)

		r.Route("/timeline", func(r chi.Router) {
			r.Get("/snapshot", timelineHandler.GetSnapshot)
			r.Post("/export", timelineHandler.Export)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/recent", timelineHandler.GetRecent)
		})
	})

	return r
}
