package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router picks the backend for each agent turn. Agents without an explicit
// binding use the first provider registered. Capability state lives in the
// session, not the provider, so rebinding an agent mid-conversation does
// not disturb what the conversation has loaded.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	bindings  map[string]string // agent id -> provider id
	defaultID string
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		logger:    logger,
	}
}

// Register adds a provider. The first one registered becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaultID == "" {
		r.defaultID = p.ID()
	}
	r.logger.Info("registered provider",
		zap.String("id", p.ID()),
		zap.String("name", p.Name()))
}

// Bind routes an agent's turns to a specific provider.
func (r *Router) Bind(agentID, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[agentID] = providerID
}

// Route sends one completion round through the agent's provider.
func (r *Router) Route(ctx context.Context, agentID string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	p := r.resolveLocked(agentID)
	r.mu.RUnlock()

	if p == nil {
		return nil, fmt.Errorf("no provider registered for agent %q", agentID)
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.ID(), err)
	}
	return resp, nil
}

func (r *Router) resolveLocked(agentID string) Provider {
	if pid, ok := r.bindings[agentID]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	return r.providers[r.defaultID]
}
