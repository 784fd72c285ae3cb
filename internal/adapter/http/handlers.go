// Package http exposes the dispatch and fleet APIs over HTTP.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/port/toolregistry"
	"github.com/taskfleet/taskfleet/internal/resilience"
	"github.com/taskfleet/taskfleet/internal/service"
)

// Handlers carries the services the HTTP layer fronts. The tool store
// may be nil; its endpoints then return 404.
type Handlers struct {
	Dispatcher *service.DispatchService
	Fleet      *service.Fleet
	Breaker    *resilience.Breaker
	Registry   *agent.Registry
	Tools      toolregistry.Store
	Version    string
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// Ready is the readiness probe; it fails until every worker is running.
func (h *Handlers) Ready(w http.ResponseWriter, _ *http.Request) {
	statuses := h.Fleet.Statuses()
	if !h.Fleet.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":   false,
			"workers": statuses,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":   true,
		"workers": statuses,
	})
}

// Metrics returns per-worker counters and circuit snapshots.
func (h *Handlers) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workers":  h.Fleet.Metrics(),
		"circuits": h.Breaker.Circuits(),
	})
}

// DispatchTask routes, reserves, and publishes a task.
func (h *Handlers) DispatchTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DispatchRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "dispatch failed")
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// RouteTask classifies a task without dispatching it.
func (h *Handlers) RouteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DispatchRequest](w, r)
	if !ok {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	writeJSON(w, http.StatusOK, h.Dispatcher.Route(req))
}

// ListAgents returns the agent role catalog.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.All())
}

// SessionBudget returns one session's ledger.
func (h *Handlers) SessionBudget(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ledger, ok := h.Dispatcher.SessionBudget(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// ListCircuits returns all circuit breaker snapshots.
func (h *Handlers) ListCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Breaker.Circuits())
}

// GetToolFlag reads one tool enablement flag.
func (h *Handlers) GetToolFlag(w http.ResponseWriter, r *http.Request) {
	if h.Tools == nil {
		writeError(w, http.StatusNotFound, "tool registry not configured")
		return
	}
	key := chi.URLParam(r, "key")
	enabled, err := h.Tools.Enabled(r.Context(), key)
	if err != nil {
		writeDomainError(w, err, "tool lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "enabled": enabled})
}

// SetToolFlag writes one tool enablement flag.
func (h *Handlers) SetToolFlag(w http.ResponseWriter, r *http.Request) {
	if h.Tools == nil {
		writeError(w, http.StatusNotFound, "tool registry not configured")
		return
	}
	key := chi.URLParam(r, "key")
	body, ok := readJSON[struct {
		Enabled bool `json:"enabled"`
	}](w, r)
	if !ok {
		return
	}
	if err := h.Tools.SetEnabled(r.Context(), key, body.Enabled); err != nil {
		writeDomainError(w, err, "tool update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "enabled": body.Enabled})
}
