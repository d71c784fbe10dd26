package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/agent"
)

const (
	sessionPrefix = "gatehouse:session:"
	sessionIndex  = "gatehouse:sessions"
)

// SaveSession persists the full session record, messages and capability
// state included.
func (r *Redis) SaveSession(ctx context.Context, s *agent.Session) error {
	if err := r.setJSON(ctx, sessionPrefix+s.ID, s); err != nil {
		return err
	}
	if err := r.rdb.SAdd(ctx, sessionIndex, s.ID).Err(); err != nil {
		return &UnavailableError{Op: "index session", Err: err}
	}
	return nil
}

// GetSession loads one session. Unknown ids yield agent.ErrSessionNotFound
// so callers need not know which store backs them.
func (r *Redis) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	var s agent.Session
	if err := r.getJSON(ctx, sessionPrefix+id, &s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, agent.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session and its index entry.
func (r *Redis) DeleteSession(ctx context.Context, id string) error {
	if err := r.delete(ctx, sessionPrefix+id); err != nil {
		return err
	}
	if err := r.rdb.SRem(ctx, sessionIndex, id).Err(); err != nil {
		return &UnavailableError{Op: "unindex session", Err: err}
	}
	return nil
}

// ListSessions returns every stored session. Index entries whose record has
// vanished are skipped and logged, not fatal.
func (r *Redis) ListSessions(ctx context.Context) ([]*agent.Session, error) {
	ids, err := r.rdb.SMembers(ctx, sessionIndex).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "list sessions", Err: err}
	}
	out := make([]*agent.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if errors.Is(err, agent.ErrSessionNotFound) {
			r.logger.Warn("session indexed but missing", zap.String("id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
