package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestGate(policies map[string]Policy) *Gate {
	return NewGate(policies, zap.NewNop())
}

func TestRequestAndResolveApprove(t *testing.T) {
	g := newTestGate(map[string]Policy{
		"create_issue": {RequireApproval: true},
	})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "create_issue", `{"project":"OPS"}`, "Create issue in OPS?", "writes to tracker")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if r.Status != StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}
	if r.ExpiresAt != nil {
		t.Error("zero timeout should mean no expiry")
	}

	done := make(chan struct{})
	var status Status
	go func() {
		defer close(done)
		status, _, _ = g.Await(ctx, r.ID)
	}()

	// Let the waiter register before resolving.
	time.Sleep(20 * time.Millisecond)
	if _, err := g.Resolve(ctx, r.ID, DecisionApprove, "alice", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("await did not return after resolution")
	}
	if status != StatusApproved {
		t.Errorf("await status = %s, want approved", status)
	}
}

func TestResolveTwiceFails(t *testing.T) {
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := g.Resolve(ctx, r.ID, DecisionApprove, "alice", ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err = g.Resolve(ctx, r.ID, DecisionReject, "bob", "changed my mind")
	var already *AlreadyResolvedError
	if !errors.As(err, &already) {
		t.Fatalf("second resolve err = %v, want AlreadyResolvedError", err)
	}
	if already.Status != StatusApproved {
		t.Errorf("already.Status = %s, want approved", already.Status)
	}

	got, err := g.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusApproved || got.ResolvedBy != "alice" {
		t.Errorf("request mutated by failed resolve: %+v", got)
	}
}

func TestExpiry(t *testing.T) {
	g := newTestGate(map[string]Policy{
		"write_range": {RequireApproval: true, Timeout: 50 * time.Millisecond},
	})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "write_range", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if r.ExpiresAt == nil {
		t.Fatal("timeout policy should set an expiry")
	}

	status, _, err := g.Await(ctx, r.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if status != StatusExpired {
		t.Fatalf("await status = %s, want expired", status)
	}

	_, err = g.Resolve(ctx, r.ID, DecisionApprove, "alice", "")
	var already *AlreadyResolvedError
	if !errors.As(err, &already) {
		t.Fatalf("resolve after expiry err = %v, want AlreadyResolvedError", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	g := newTestGate(map[string]Policy{
		"run_query": {RequireApproval: true, RequireReasonOnReject: true},
	})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "run_query", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = g.Resolve(ctx, r.ID, DecisionReject, "alice", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("reject without reason err = %v, want ValidationError", err)
	}

	got, err := g.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("failed reject moved request to %s", got.Status)
	}

	resolved, err := g.Resolve(ctx, r.ID, DecisionReject, "alice", "query touches PII tables")
	if err != nil {
		t.Fatalf("reject with reason: %v", err)
	}
	if resolved.Status != StatusRejected || resolved.Reason == "" {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestAwaitCancellation(t *testing.T) {
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})

	r, err := g.Request(context.Background(), "call-1", "sess-1", "create_issue", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	status, _, err := g.Await(ctx, r.ID)
	if status != StatusCancelled {
		t.Fatalf("await status = %s, want cancelled", status)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("await err = %v, want context.Canceled", err)
	}

	got, _ := g.Get(context.Background(), r.ID)
	if got.Status != StatusCancelled {
		t.Errorf("request status = %s, want cancelled", got.Status)
	}
}

func TestAwaitNotFound(t *testing.T) {
	g := newTestGate(nil)

	_, _, err := g.Await(context.Background(), "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestDuplicateOpenRequestPerCall(t *testing.T) {
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	ctx := context.Background()

	if _, err := g.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := g.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", ""); err == nil {
		t.Fatal("second open request for the same call id should fail")
	}
}

func TestSweepExpired(t *testing.T) {
	g := newTestGate(map[string]Policy{
		"write_range": {RequireApproval: true, Timeout: time.Minute},
	})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "write_range", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Move the clock past the deadline.
	g.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	ids := g.SweepExpired(ctx)
	if len(ids) != 1 || ids[0] != r.ID {
		t.Fatalf("swept = %v, want [%s]", ids, r.ID)
	}
	got, _ := g.Get(ctx, r.ID)
	if got.Status != StatusExpired {
		t.Errorf("status after sweep = %s", got.Status)
	}
}

type memStore struct {
	saved map[string]*Request
}

func (m *memStore) SaveApproval(_ context.Context, r *Request) error {
	if m.saved == nil {
		m.saved = make(map[string]*Request)
	}
	cp := *r
	m.saved[r.ID] = &cp
	return nil
}

func (m *memStore) PendingApprovals(_ context.Context) ([]*Request, error) {
	var out []*Request
	for _, r := range m.saved {
		if r.Status == StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memEmitter struct {
	events []Event
}

func (m *memEmitter) Emit(ev Event) { m.events = append(m.events, ev) }

type memAuditor struct {
	records []Request
}

func (m *memAuditor) RecordApprovalEvent(_ context.Context, r *Request) error {
	m.records = append(m.records, *r)
	return nil
}

func TestStoreAndEvents(t *testing.T) {
	store := &memStore{}
	emitter := &memEmitter{}
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	g.SetStore(store)
	g.SetEmitter(emitter)
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := g.Resolve(ctx, r.ID, DecisionApprove, "alice", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if store.saved[r.ID].Status != StatusApproved {
		t.Errorf("stored status = %s", store.saved[r.ID].Status)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("events = %d, want requested + resolved", len(emitter.events))
	}
	if emitter.events[0].Type != EventRequested || emitter.events[1].Type != EventResolved {
		t.Errorf("event types = %s, %s", emitter.events[0].Type, emitter.events[1].Type)
	}
	if emitter.events[1].Actor != "alice" {
		t.Errorf("resolved actor = %q", emitter.events[1].Actor)
	}
}

func TestAuditTrailCoversCreation(t *testing.T) {
	audit := &memAuditor{}
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	g.SetAuditor(audit)
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := g.Resolve(ctx, r.ID, DecisionApprove, "alice", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(audit.records) != 2 {
		t.Fatalf("audit records = %d, want pending + approved", len(audit.records))
	}
	if audit.records[0].Status != StatusPending {
		t.Errorf("first record status = %s, want pending", audit.records[0].Status)
	}
	if audit.records[1].Status != StatusApproved || audit.records[1].ResolvedBy != "alice" {
		t.Errorf("second record = %+v", audit.records[1])
	}
}

func TestAwaitDeadlineLosesToResolution(t *testing.T) {
	// An operator decision and the await deadline can land in the same
	// instant; the decision must win and the request must not be re-marked
	// expired afterwards.
	g := newTestGate(map[string]Policy{
		"write_range": {RequireApproval: true, Timeout: time.Minute},
	})
	ctx := context.Background()

	r, err := g.Request(ctx, "call-1", "sess-1", "write_range", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := g.Resolve(ctx, r.ID, DecisionApprove, "alice", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	status, _ := g.settleWait(ctx, r.ID, StatusExpired, "")
	if status != StatusApproved {
		t.Fatalf("settled status = %s, want approved", status)
	}

	got, err := g.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusApproved || got.ResolvedBy != "alice" {
		t.Errorf("request overwritten after deadline: %+v", got)
	}
}

func TestRehydrate(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	g1 := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	g1.SetStore(store)
	r, err := g1.Request(ctx, "call-1", "sess-1", "create_issue", "{}", "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	g2 := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	g2.SetStore(store)
	if err := g2.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	got, err := g2.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get after rehydrate: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if len(g2.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(g2.Pending()))
	}
}

func TestPendingOrdering(t *testing.T) {
	g := newTestGate(map[string]Policy{"create_issue": {RequireApproval: true}})
	ctx := context.Background()

	// Create out of chronological order by steering the clock backwards.
	base := time.Now()
	offsets := []time.Duration{2 * time.Minute, 0, time.Minute}
	calls := []string{"call-c", "call-a", "call-b"}
	for i, off := range offsets {
		off := off
		g.now = func() time.Time { return base.Add(off) }
		if _, err := g.Request(ctx, calls[i], "sess-1", "create_issue", "{}", "", ""); err != nil {
			t.Fatalf("request %s: %v", calls[i], err)
		}
	}

	pending := g.Pending()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	want := []string{"call-a", "call-b", "call-c"}
	for i, r := range pending {
		if r.CallID != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, r.CallID, want[i])
		}
	}
}
