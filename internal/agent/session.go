package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/margrave/gatehouse/internal/capability"
	"github.com/margrave/gatehouse/internal/provider"
)

// Session is one conversation with an agent. Capability state travels with
// the session: what one conversation loads never leaks into another.
type Session struct {
	ID           string             `json:"id"`
	AgentID      string             `json:"agent_id"`
	Messages     []provider.Message `json:"messages"`
	Capabilities capability.State   `json:"capabilities"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewSession creates an empty session for an agent.
func NewSession(agentID string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		Capabilities: capability.NewState(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions between turns.
type SessionStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]*Session, error)
}

// MemorySessionStore keeps sessions in process memory. Used when no Redis
// is configured, and in tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Messages = append([]provider.Message(nil), s.Messages...)
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemorySessionStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	cp.Messages = append([]provider.Message(nil), s.Messages...)
	return &cp, nil
}

func (m *MemorySessionStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) ListSessions(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		cp.Messages = append([]provider.Message(nil), s.Messages...)
		out = append(out, &cp)
	}
	return out, nil
}
