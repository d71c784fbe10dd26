package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

// AuditEvent is one recorded approval transition.
type AuditEvent struct {
	ApprovalID string    `json:"approval_id"`
	SessionID  string    `json:"session_id"`
	ToolName   string    `json:"tool_name"`
	Status     string    `json:"status"`
	Actor      string    `json:"actor,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditLog writes approval transitions to PostgreSQL. Redis holds the live
// request state; the audit trail is append-only and outlives it.
type AuditLog struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAuditLog connects to PostgreSQL with a pgx pool.
func NewAuditLog(dsn string, logger *zap.Logger) (*AuditLog, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &AuditLog{db: pool, logger: logger}, nil
}

// EnsureSchema creates the audit table if it does not exist.
func (a *AuditLog) EnsureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS approval_audit (
			id          BIGSERIAL PRIMARY KEY,
			approval_id TEXT NOT NULL,
			session_id  TEXT NOT NULL,
			tool_name   TEXT NOT NULL,
			status      TEXT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			reason      TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	_, err = a.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS approval_audit_session_idx
		ON approval_audit (session_id)`)
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// RecordApprovalEvent appends one row per status transition.
func (a *AuditLog) RecordApprovalEvent(ctx context.Context, r *approval.Request) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO approval_audit (approval_id, session_id, tool_name, status, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.SessionID, r.ToolName, string(r.Status), r.ResolvedBy, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("record approval event: %w", err)
	}
	return nil
}

// Events returns the audit rows for one approval, oldest first.
func (a *AuditLog) Events(ctx context.Context, approvalID string) ([]AuditEvent, error) {
	return a.query(ctx, `approval_id = $1`, approvalID)
}

// EventsBySession returns the audit rows for every approval a conversation
// opened, oldest first.
func (a *AuditLog) EventsBySession(ctx context.Context, sessionID string) ([]AuditEvent, error) {
	return a.query(ctx, `session_id = $1`, sessionID)
}

func (a *AuditLog) query(ctx context.Context, where string, arg string) ([]AuditEvent, error) {
	rows, err := a.db.Query(ctx, `
		SELECT approval_id, session_id, tool_name, status, actor, reason, created_at
		FROM approval_audit
		WHERE `+where+`
		ORDER BY id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.ApprovalID, &ev.SessionID, &ev.ToolName, &ev.Status, &ev.Actor, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close shuts down the connection pool.
func (a *AuditLog) Close() {
	a.db.Close()
}
