package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/AgentFleet/internal/middleware"
)

// MountRoutes registers all operator API routes on the given chi router.
// wsHandler serves the live update WebSocket endpoint; apiKeyHash guards
// the /api/v1 group (empty disables the check).
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc, apiKeyHash string) {
	r.Get("/health", h.Health)
	r.Get("/ws", wsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(apiKeyHash))

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}/status", h.UpdateAgentStatus)
		r.Get("/agents/{id}/sandbox", h.AgentSandbox)
		r.Delete("/agents/{id}", h.DeleteAgent)

		// Tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Post("/tasks/{id}/resume", h.ResumeTask)

		// Metrics & analytics
		r.Get("/metrics/summary", h.MetricsSummary)
		r.Get("/analytics/daily", h.AnalyticsDaily)

		// Chat ingest (events are pre-verified by the webhook layer)
		r.Post("/chat/events", h.ChatEvent)

		// Operator-triggered reconciliation
		r.Post("/reconcile", h.Reconcile)
	})
}
