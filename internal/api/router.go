package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openmural/signage-core/internal/fleet"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged
			// in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// System overview
			r.Get("/system/status", s.handleSystemStatus)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleRegisterDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Put("/config", s.handleUpdateDeviceConfig)
					r.Post("/command", s.handleDeviceCommand)

					r.Route("/playlist", func(r chi.Router) {
						r.Get("/", s.handleDevicePlaylist)
						r.Post("/reorder", s.handleReorderPlaylist)
						r.Post("/shuffle", s.handleShufflePlaylist)
					})
				})
			})

			// Content endpoints
			r.Route("/content", func(r chi.Router) {
				r.Get("/", s.handleListContent)
				r.Post("/", s.handleCreateContent)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetContent)
					r.Delete("/", s.handleDeleteContent)
					r.Post("/assign", s.handleAssignContent)
					r.Post("/unassign", s.handleUnassignContent)
					r.Get("/attachment", s.handleGetAttachment)
					r.Put("/attachment", s.handlePutAttachment)
				})
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSystemStatus returns a fleet overview for dashboards.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "listing devices")
		return
	}

	online := 0
	for _, d := range devices {
		if d.Status == fleet.StatusOnline {
			online++
		}
	}

	content, err := s.registry.ListContent(r.Context())
	if err != nil {
		writeInternalError(w, "listing content")
		return
	}

	wsClients := 0
	if s.hub != nil {
		wsClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":         s.version,
		"uptime_seconds":  int(time.Since(s.started).Seconds()),
		"devices_total":   len(devices),
		"devices_online":  online,
		"content_total":   len(content),
		"broker_attached": s.gateway != nil,
		"ws_clients":      wsClients,
	})
}
