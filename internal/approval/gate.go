package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists approval requests so pending ones survive a restart.
type Store interface {
	SaveApproval(ctx context.Context, r *Request) error
	PendingApprovals(ctx context.Context) ([]*Request, error)
}

// Auditor records every transition for the audit trail: the pending row on
// creation, then the terminal row.
type Auditor interface {
	RecordApprovalEvent(ctx context.Context, r *Request) error
}

// outcome is what a waiter receives when its request leaves pending.
type outcome struct {
	status Status
	reason string
}

// Gate is the human-in-the-loop approval layer. Tools whose policy sets
// RequireApproval suspend their turn on Await until an operator resolves
// the request, it expires, or the waiting context is cancelled.
type Gate struct {
	mu       sync.Mutex
	policies map[string]Policy
	requests map[string]*Request
	waiters  map[string]chan outcome

	store   Store   // optional
	audit   Auditor // optional
	emitter Emitter // optional

	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates an approval gate with per-tool policies.
func NewGate(policies map[string]Policy, logger *zap.Logger) *Gate {
	if policies == nil {
		policies = make(map[string]Policy)
	}
	return &Gate{
		policies: policies,
		requests: make(map[string]*Request),
		waiters:  make(map[string]chan outcome),
		logger:   logger,
		now:      time.Now,
	}
}

// SetStore attaches a persistence backend.
func (g *Gate) SetStore(s Store) { g.store = s }

// SetAuditor attaches an audit sink.
func (g *Gate) SetAuditor(a Auditor) { g.audit = a }

// SetEmitter attaches an event emitter.
func (g *Gate) SetEmitter(e Emitter) { g.emitter = e }

// PolicyFor returns the tool's policy. The second return is true only when
// the tool actually requires approval.
func (g *Gate) PolicyFor(tool string) (Policy, bool) {
	p, ok := g.policies[tool]
	return p, ok && p.RequireApproval
}

// Request opens a pending approval for a proposed tool call. At most one
// open approval may exist per call id.
func (g *Gate) Request(ctx context.Context, callID, sessionID, toolName, args, message, impact string) (*Request, error) {
	policy := g.policies[toolName]
	now := g.now()

	r := &Request{
		ID:        uuid.New().String(),
		CallID:    callID,
		SessionID: sessionID,
		ToolName:  toolName,
		Args:      args,
		Message:   message,
		Impact:    impact,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if policy.Timeout > 0 {
		exp := now.Add(policy.Timeout)
		r.ExpiresAt = &exp
	}

	g.mu.Lock()
	for _, existing := range g.requests {
		if existing.CallID == callID && existing.Status == StatusPending {
			g.mu.Unlock()
			return nil, fmt.Errorf("open approval already exists for call %s", callID)
		}
	}
	g.requests[r.ID] = r
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.SaveApproval(ctx, r); err != nil {
			g.mu.Lock()
			delete(g.requests, r.ID)
			g.mu.Unlock()
			return nil, fmt.Errorf("persist approval: %w", err)
		}
	}

	g.logger.Info("approval requested",
		zap.String("id", r.ID),
		zap.String("tool", toolName),
		zap.String("session", sessionID))

	if g.audit != nil {
		if err := g.audit.RecordApprovalEvent(ctx, r); err != nil {
			g.logger.Error("auditing approval creation failed",
				zap.String("id", r.ID), zap.Error(err))
		}
	}

	g.emit(Event{
		Type:       EventRequested,
		ApprovalID: r.ID,
		SessionID:  sessionID,
		ToolName:   toolName,
		Status:     StatusPending,
		At:         now,
	})
	return g.snapshot(r), nil
}

// Resolve applies an operator decision to a pending request. Terminal
// requests fail with AlreadyResolvedError and are not mutated.
func (g *Gate) Resolve(ctx context.Context, id string, d Decision, actor, reason string) (*Request, error) {
	g.mu.Lock()
	r, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}
	g.expireLocked(ctx, r)
	if r.Status != StatusPending {
		status := r.Status
		g.mu.Unlock()
		return nil, &AlreadyResolvedError{ID: id, Status: status}
	}

	var status Status
	switch d {
	case DecisionApprove:
		status = StatusApproved
	case DecisionReject:
		if g.policies[r.ToolName].RequireReasonOnReject && reason == "" {
			g.mu.Unlock()
			return nil, &ValidationError{Msg: fmt.Sprintf("rejecting %q requires a reason", r.ToolName)}
		}
		status = StatusRejected
	default:
		g.mu.Unlock()
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown decision %q", d)}
	}

	now := g.now()
	r.Status = status
	r.ResolvedAt = &now
	r.ResolvedBy = actor
	r.Reason = reason
	g.notifyWaiterLocked(r)
	g.mu.Unlock()

	g.finalize(ctx, r)
	g.logger.Info("approval resolved",
		zap.String("id", id),
		zap.String("status", string(status)),
		zap.String("actor", actor))
	return g.snapshot(r), nil
}

// Await blocks until the request leaves pending: operator resolution,
// expiry (the deadline is the request's expiry, armed here rather than
// polled), or cancellation of ctx, which transitions the request to
// cancelled so the audit trail can tell operator rejection apart from a
// client disconnect.
func (g *Gate) Await(ctx context.Context, id string) (Status, string, error) {
	g.mu.Lock()
	r, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return "", "", &NotFoundError{ID: id}
	}
	if r.Status != StatusPending {
		status, reason := r.Status, r.Reason
		g.mu.Unlock()
		return status, reason, nil
	}
	ch := make(chan outcome, 1)
	g.waiters[id] = ch

	var expiry <-chan time.Time
	if r.ExpiresAt != nil {
		t := time.NewTimer(r.ExpiresAt.Sub(g.now()))
		defer t.Stop()
		expiry = t.C
	}
	g.mu.Unlock()

	select {
	case out := <-ch:
		return out.status, out.reason, nil
	case <-expiry:
		status, reason := g.settleWait(ctx, id, StatusExpired, "")
		return status, reason, nil
	case <-ctx.Done():
		status, reason := g.settleWait(context.Background(), id, StatusCancelled, "client disconnected")
		if status != StatusCancelled {
			return status, reason, nil
		}
		return status, reason, ctx.Err()
	}
}

// settleWait closes out an Await whose deadline fired or whose context was
// cancelled. An operator resolution may have won the race and already sent
// the outcome to the waiter channel; in that case the request's actual
// status is reported and nothing is re-transitioned.
func (g *Gate) settleWait(ctx context.Context, id string, status Status, reason string) (Status, string) {
	g.mu.Lock()
	r, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return status, reason
	}
	if r.Status != StatusPending {
		actual, actualReason := r.Status, r.Reason
		delete(g.waiters, id)
		g.mu.Unlock()
		return actual, actualReason
	}
	now := g.now()
	r.Status = status
	r.ResolvedAt = &now
	r.Reason = reason
	delete(g.waiters, id)
	g.mu.Unlock()

	g.finalize(ctx, r)
	g.logger.Info("approval closed",
		zap.String("id", id),
		zap.String("status", string(status)))
	return status, reason
}

// SweepExpired transitions every pending request past its expiry. Covers
// requests nobody is awaiting, e.g. rehydrated after a restart.
func (g *Gate) SweepExpired(ctx context.Context) []string {
	g.mu.Lock()
	var expired []*Request
	for _, r := range g.requests {
		if g.pastExpiryLocked(r) {
			now := g.now()
			r.Status = StatusExpired
			r.ResolvedAt = &now
			g.notifyWaiterLocked(r)
			expired = append(expired, r)
		}
	}
	g.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, r := range expired {
		g.finalize(ctx, r)
		ids = append(ids, r.ID)
	}
	return ids
}

// Get returns a copy of the request, lazily expiring it first.
func (g *Gate) Get(ctx context.Context, id string) (*Request, error) {
	g.mu.Lock()
	r, ok := g.requests[id]
	if !ok {
		g.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}
	expired := g.expireLocked(ctx, r)
	out := g.snapshot(r)
	g.mu.Unlock()

	if expired {
		g.finalize(ctx, r)
	}
	return out, nil
}

// Pending returns a read-only snapshot of pending requests, oldest first.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Request
	for _, r := range g.requests {
		if r.Status == StatusPending && !g.pastExpiryLocked(r) {
			out = append(out, g.snapshot(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Rehydrate loads pending requests from the store, typically at startup.
func (g *Gate) Rehydrate(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	pending, err := g.store.PendingApprovals(ctx)
	if err != nil {
		return fmt.Errorf("load pending approvals: %w", err)
	}
	g.mu.Lock()
	for _, r := range pending {
		if _, ok := g.requests[r.ID]; !ok {
			g.requests[r.ID] = r
		}
	}
	g.mu.Unlock()
	if len(pending) > 0 {
		g.logger.Info("rehydrated pending approvals", zap.Int("count", len(pending)))
	}
	return nil
}

// expireLocked marks r expired if past its deadline; returns whether it did.
func (g *Gate) expireLocked(_ context.Context, r *Request) bool {
	if !g.pastExpiryLocked(r) {
		return false
	}
	now := g.now()
	r.Status = StatusExpired
	r.ResolvedAt = &now
	g.notifyWaiterLocked(r)
	return true
}

func (g *Gate) pastExpiryLocked(r *Request) bool {
	return r.Status == StatusPending && r.ExpiresAt != nil && g.now().After(*r.ExpiresAt)
}

func (g *Gate) notifyWaiterLocked(r *Request) {
	if ch, ok := g.waiters[r.ID]; ok {
		ch <- outcome{status: r.Status, reason: r.Reason}
		delete(g.waiters, r.ID)
	}
}

// finalize persists, audits, and emits a terminal transition. Persistence
// failures are logged, not raised: the in-memory transition already
// happened and must not be rolled back.
func (g *Gate) finalize(ctx context.Context, r *Request) {
	if g.store != nil {
		if err := g.store.SaveApproval(ctx, r); err != nil {
			g.logger.Error("persisting approval failed",
				zap.String("id", r.ID), zap.Error(err))
		}
	}
	if g.audit != nil {
		if err := g.audit.RecordApprovalEvent(ctx, r); err != nil {
			g.logger.Error("auditing approval failed",
				zap.String("id", r.ID), zap.Error(err))
		}
	}
	g.emit(Event{
		Type:       EventResolved,
		ApprovalID: r.ID,
		SessionID:  r.SessionID,
		ToolName:   r.ToolName,
		Status:     r.Status,
		Actor:      r.ResolvedBy,
		Reason:     r.Reason,
		At:         g.now(),
	})
}

func (g *Gate) emit(ev Event) {
	if g.emitter != nil {
		g.emitter.Emit(ev)
	}
}

func (g *Gate) snapshot(r *Request) *Request {
	out := *r
	return &out
}

