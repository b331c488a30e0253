// Package handlers implements the HTTP handlers of the orchestrator daemon.
// Every handler is a thin adapter over engine.Engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentoven/orchestrator/internal/engine"
	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/registry"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Controller exposes daemon lifecycle operations to the HTTP surface.
type Controller interface {
	RequestShutdown()
	Draining() bool
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine  *engine.Engine
	Control Controller
}

// New creates a new Handlers instance.
func New(eng *engine.Engine, ctl Controller) *Handlers {
	return &Handlers{Engine: eng, Control: ctl}
}

// ── Agents ───────────────────────────────────────────────────

// SpawnAgent handles POST /agents.
func (h *Handlers) SpawnAgent(w http.ResponseWriter, r *http.Request) {
	var cfg models.SpawnRequest
	if err := decode(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.Engine.SpawnAgent(r.Context(), cfg)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// ListAgents handles GET /agents?state=&provider=.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	filter := models.AgentFilter{
		State:    models.AgentState(r.URL.Query().Get("state")),
		Provider: r.URL.Query().Get("provider"),
	}
	if filter.State != "" && !filter.State.Valid() {
		respondError(w, http.StatusBadRequest, "unknown state "+strconv.Quote(string(filter.State)))
		return
	}
	respondJSON(w, http.StatusOK, h.Engine.ListAgents(filter))
}

// GetAgent handles GET /agents/{name}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	info, err := h.Engine.GetAgent(chi.URLParam(r, "name"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// ShutdownAll handles DELETE /agents.
func (h *Handlers) ShutdownAll(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.ShutdownAll(r.Context()))
}

// ShutdownAgent handles DELETE /agents/{name}.
func (h *Handlers) ShutdownAgent(w http.ResponseWriter, r *http.Request) {
	err := h.Engine.ShutdownAgent(r.Context(), chi.URLParam(r, "name"))
	if err != nil && errors.Is(err, registry.ErrAgentNotFound) {
		respondEngineError(w, err)
		return
	}
	if err != nil {
		// The agent is unregistered regardless; report the failed release.
		log.Warn().Err(err).Str("agent", chi.URLParam(r, "name")).Msg("agent shutdown reported an error")
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /agents/{name}/message.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	msgs, err := h.Engine.SendMessage(r.Context(), chi.URLParam(r, "name"), req.Content)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.MessagesResponse{Messages: msgs})
}

// RunTask handles POST /agents/{name}/task: spawn, send, shut down.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	var req models.TaskRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	cfg := req.AgentConfig
	cfg.Name = chi.URLParam(r, "name")

	msgs, err := h.Engine.RunTask(r.Context(), cfg, req.Prompt)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.MessagesResponse{Messages: msgs})
}

// History handles GET /agents/{name}/history?limit=.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs := h.Engine.GetHistory(chi.URLParam(r, "name"), limit)
	respondJSON(w, http.StatusOK, models.MessagesResponse{Messages: msgs})
}

// ── Daemon ───────────────────────────────────────────────────

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status: "ok",
		Agents: h.Engine.AgentCount(),
	})
}

// ListProviders handles GET /providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"providers": h.Engine.Providers()})
}

// Shutdown handles POST /shutdown.
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	log.Info().Msg("shutdown requested over HTTP")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	h.Control.RequestShutdown()
}

// ── Helpers ──────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrAgentExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrAgentUnavailable):
		return http.StatusConflict
	case errors.Is(err, provider.ErrProviderNotFound), errors.Is(err, provider.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, provider.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondEngineError(w http.ResponseWriter, err error) {
	respondError(w, StatusFor(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
