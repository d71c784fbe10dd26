package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/agent"
	"github.com/margrave/gatehouse/internal/approval"
	"github.com/margrave/gatehouse/internal/capability"
	"github.com/margrave/gatehouse/internal/notify"
	"github.com/margrave/gatehouse/internal/provider"
	"github.com/margrave/gatehouse/internal/store"
	"github.com/margrave/gatehouse/internal/workflow"
)

// VersionStore manages capability versions. Satisfied by the Redis store;
// nil disables the version endpoints.
type VersionStore interface {
	ListVersions(ctx context.Context, capID string) ([]capability.Version, error)
	AddVersion(ctx context.Context, capID, label, instructions string) (capability.Version, error)
	ActivateVersion(ctx context.Context, capID string, number int) error
}

// AuditReader serves approval audit trails, per approval or per session.
// Satisfied by the Postgres audit log; nil disables the endpoints.
type AuditReader interface {
	Events(ctx context.Context, approvalID string) ([]store.AuditEvent, error)
	EventsBySession(ctx context.Context, sessionID string) ([]store.AuditEvent, error)
}

// ProviderInfo describes a configured provider for the listing endpoint.
type ProviderInfo struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Name   string   `json:"name"`
	Models []string `json:"models,omitempty"`
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine      *agent.Engine
	registry    *capability.Registry
	versions    VersionStore
	approvals   *approval.Gate
	coordinator *workflow.Coordinator
	hub         *notify.Hub
	audit       AuditReader
	router      *provider.Router
	logger      *zap.Logger

	mu        sync.RWMutex
	providers []ProviderInfo
}

// NewHandler creates a new API handler. versions, coordinator, hub, audit,
// and router may be nil; the corresponding endpoints answer 503.
func NewHandler(
	engine *agent.Engine,
	registry *capability.Registry,
	versions VersionStore,
	approvals *approval.Gate,
	coordinator *workflow.Coordinator,
	hub *notify.Hub,
	audit AuditReader,
	router *provider.Router,
	providers []ProviderInfo,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:      engine,
		registry:    registry,
		versions:    versions,
		approvals:   approvals,
		coordinator: coordinator,
		hub:         hub,
		audit:       audit,
		router:      router,
		providers:   providers,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Delete("/agents/{id}", h.deleteAgent)
		r.Post("/agents/{id}/chat", h.chatWithAgent)

		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}", h.getSession)
		r.Delete("/sessions/{id}", h.deleteSession)
		r.Get("/sessions/{id}/capabilities", h.sessionCapabilities)
		r.Get("/sessions/{id}/approvals", h.sessionApprovalEvents)

		r.Get("/capabilities", h.listCapabilities)
		r.Get("/capabilities/{id}", h.getCapability)
		r.Get("/capabilities/{id}/versions", h.listVersions)
		r.Post("/capabilities/{id}/versions", h.addVersion)
		r.Post("/capabilities/{id}/versions/{number}/activate", h.activateVersion)

		r.Get("/approvals", h.listApprovals)
		r.Get("/approvals/{id}", h.getApproval)
		r.Post("/approvals/{id}/resolve", h.resolveApproval)
		r.Get("/approvals/{id}/events", h.approvalEvents)

		r.Get("/events", h.streamEvents)

		r.Post("/teams", h.createTeam)
		r.Get("/teams", h.listTeams)
		r.Post("/teams/{teamID}/chat", h.chatWithTeam)

		r.Get("/providers", h.listProviders)
		r.Post("/providers", h.createProvider)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.List())
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var a agent.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if a.Persona.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "persona.name is required"})
		return
	}
	h.engine.Register(&a)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := h.engine.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.engine.Remove(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *Handler) chatWithAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	result, err := h.engine.Execute(r.Context(), id, req.SessionID, req.Message)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrAgentNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.Sessions().ListSessions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Sessions().DeleteSession(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// sessionCapabilities reports what a conversation has loaded: ids, load
// counts, recorded versions, and the tools currently unlocked.
func (h *Handler) sessionCapabilities(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":     sess.ID,
		"state":          sess.Capabilities,
		"unlocked_tools": h.registry.ResolveTools(sess.Capabilities.Loaded),
	})
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*agent.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := h.engine.Sessions().GetSession(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *Handler) getCapability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.registry.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	if !h.requireVersions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	versions, err := h.versions.ListVersions(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

type addVersionRequest struct {
	Label        string `json:"label"`
	Instructions string `json:"instructions"`
}

func (h *Handler) addVersion(w http.ResponseWriter, r *http.Request) {
	if !h.requireVersions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	var req addVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Instructions == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instructions is required"})
		return
	}
	v, err := h.versions.AddVersion(r.Context(), id, req.Label, req.Instructions)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) activateVersion(w http.ResponseWriter, r *http.Request) {
	if !h.requireVersions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	var number int
	if _, err := fmt.Sscanf(chi.URLParam(r, "number"), "%d", &number); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}
	if err := h.versions.ActivateVersion(r.Context(), id, number); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (h *Handler) requireVersions(w http.ResponseWriter) bool {
	if h.versions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "version store not configured"})
		return false
	}
	return true
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.approvals.Pending())
}

func (h *Handler) getApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type resolveRequest struct {
	Decision approval.Decision `json:"decision"`
	Actor    string            `json:"actor"`
	Reason   string            `json:"reason,omitempty"`
}

func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resolved, err := h.approvals.Resolve(r.Context(), id, req.Decision, req.Actor, req.Reason)
	if err != nil {
		var notFound *approval.NotFoundError
		var already *approval.AlreadyResolvedError
		var invalid *approval.ValidationError
		switch {
		case errors.As(err, &notFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.As(err, &already):
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":  err.Error(),
				"status": already.Status,
			})
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// sessionApprovalEvents returns the audit trail of every approval a
// conversation opened, in insertion order.
func (h *Handler) sessionApprovalEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	events, err := h.audit.EventsBySession(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) approvalEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit log not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	events, err := h.audit.Events(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// streamEvents pushes approval events over SSE until the client leaves.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event hub not configured"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "workflow coordinator not configured"})
		return
	}
	var team workflow.Team
	if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.coordinator.RegisterTeam(&team)
	writeJSON(w, http.StatusCreated, team)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "workflow coordinator not configured"})
		return
	}
	writeJSON(w, http.StatusOK, h.coordinator.ListTeams())
}

func (h *Handler) chatWithTeam(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "workflow coordinator not configured"})
		return
	}
	teamID := chi.URLParam(r, "teamID")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := h.coordinator.Run(r.Context(), teamID, req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	writeJSON(w, http.StatusOK, h.providers)
}

type createProviderRequest struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint,omitempty"`
	APIKey   string   `json:"api_key"`
	Models   []string `json:"models,omitempty"`
}

// createProvider registers a provider at runtime. Agents can bind to it on
// their next turn; nothing already routed is rebound.
func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	if h.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "provider router not configured"})
		return
	}
	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.ID == "" || req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and api_key are required"})
		return
	}

	cfg := provider.ProviderConfig{
		ID: req.ID, Type: req.Type, Name: req.Name,
		Endpoint: req.Endpoint, APIKey: req.APIKey, Models: req.Models,
	}
	switch req.Type {
	case "openai":
		h.router.Register(provider.NewOpenAIProvider(cfg, h.logger))
	case "anthropic":
		h.router.Register(provider.NewAnthropicProvider(cfg, h.logger))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown provider type %q", req.Type)})
		return
	}

	info := ProviderInfo{ID: req.ID, Type: req.Type, Name: req.Name, Models: req.Models}
	h.mu.Lock()
	h.providers = append(h.providers, info)
	h.mu.Unlock()
	writeJSON(w, http.StatusCreated, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
