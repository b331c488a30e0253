package api

import (
	"net/http"

	"github.com/agentoven/orchestrator/internal/api/handlers"
	"github.com/agentoven/orchestrator/internal/api/middleware"
	"github.com/agentoven/orchestrator/internal/engine"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router served on both daemon listeners.
func NewRouter(eng *engine.Engine, ctl handlers.Controller) http.Handler {
	h := handlers.New(eng, ctl)
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Draining(ctl.Draining))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health & lifecycle
	r.Get("/health", h.Health)
	r.Get("/providers", h.ListProviders)
	r.Post("/shutdown", h.Shutdown)

	// Agents
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.ListAgents)
		r.Post("/", h.SpawnAgent)
		r.Delete("/", h.ShutdownAll)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.GetAgent)
			r.Delete("/", h.ShutdownAgent)
			r.Post("/message", h.SendMessage)
			r.Post("/task", h.RunTask)
			r.Get("/history", h.History)
		})
	})

	return r
}
