package gate

import (
	"context"
	"strings"
	"testing"

	"github.com/margrave/gatehouse/internal/capability"
	"go.uber.org/zap"
)

func newTestMiddleware(t *testing.T) (*Middleware, *capability.Registry) {
	t.Helper()
	reg := capability.NewRegistry()
	if err := capability.RegisterBuiltins(reg); err != nil {
		t.Fatalf("builtins: %v", err)
	}
	return New(reg, nil, zap.NewNop()), reg
}

func TestPreTurnEmptyState(t *testing.T) {
	m, _ := newTestMiddleware(t)

	addendum, allowed := m.PreTurn(capability.NewState())
	if len(allowed) != 0 {
		t.Errorf("fresh state unlocked tools: %v", allowed)
	}
	if !strings.Contains(addendum, "Available Capabilities") {
		t.Errorf("addendum missing catalog: %q", addendum)
	}
	if !strings.Contains(addendum, "sql") {
		t.Errorf("catalog missing sql: %q", addendum)
	}
}

func TestPreTurnAfterLoad(t *testing.T) {
	m, _ := newTestMiddleware(t)

	s, _ := capability.MarkLoaded(capability.NewState(), "sql")
	addendum, allowed := m.PreTurn(s)

	want := map[string]bool{"run_query": true, "describe_table": true}
	if len(allowed) != 2 {
		t.Fatalf("allowed = %v, want run_query + describe_table", allowed)
	}
	for _, tool := range allowed {
		if !want[tool] {
			t.Errorf("unexpected allowed tool %q", tool)
		}
	}
	if !strings.Contains(addendum, "Loaded Capabilities") {
		t.Errorf("addendum missing loaded section: %q", addendum)
	}
}

func TestGateRejectionMessage(t *testing.T) {
	m, _ := newTestMiddleware(t)

	d := m.PostToolCall(context.Background(), ToolCall{ID: "c1", Name: "run_query", Args: `{"query":"SELECT 1"}`}, capability.NewState())
	if d.Proceed {
		t.Fatal("gated tool admitted without its capability loaded")
	}
	want := "The 'run_query' tool requires the 'sql' capability to be loaded first. " +
		"Use load_capability('sql') before using this tool."
	if d.Message != want {
		t.Errorf("rejection message = %q, want %q", d.Message, want)
	}
}

func TestUngatedToolBypasses(t *testing.T) {
	m, _ := newTestMiddleware(t)

	d := m.PostToolCall(context.Background(), ToolCall{ID: "c1", Name: "get_current_time", Args: "{}"}, capability.NewState())
	if !d.Proceed {
		t.Errorf("ungated tool refused: %q", d.Message)
	}
}

func TestLoadCapability(t *testing.T) {
	m, _ := newTestMiddleware(t)
	ctx := context.Background()

	d := m.PostToolCall(ctx, ToolCall{ID: "c1", Name: LoadToolName, Args: `{"capability":"sql"}`}, capability.NewState())
	if d.Proceed {
		t.Fatal("load_capability should be absorbed by the middleware")
	}
	if !d.State.IsLoaded("sql") {
		t.Fatal("sql not loaded after load_capability")
	}
	if !strings.Contains(d.Message, "Capability 'sql' loaded") {
		t.Errorf("confirmation message = %q", d.Message)
	}
	if !strings.Contains(d.Message, "run_query") {
		t.Errorf("confirmation does not name unlocked tools: %q", d.Message)
	}

	// Redundant load: different wording, count still increments.
	d2 := m.PostToolCall(ctx, ToolCall{ID: "c2", Name: LoadToolName, Args: `{"capability":"sql"}`}, d.State)
	if !strings.Contains(d2.Message, "already loaded") {
		t.Errorf("redundant load message = %q", d2.Message)
	}
	if d2.State.LoadCount("sql") != 2 {
		t.Errorf("load count = %d, want 2", d2.State.LoadCount("sql"))
	}
	if len(d2.State.Loaded) != 1 {
		t.Errorf("loaded set size = %d, want 1", len(d2.State.Loaded))
	}

	// After the load, the tool is admitted.
	d3 := m.PostToolCall(ctx, ToolCall{ID: "c3", Name: "run_query", Args: `{"query":"SELECT 1"}`}, d2.State)
	if !d3.Proceed {
		t.Errorf("run_query refused after loading sql: %q", d3.Message)
	}
}

func TestLoadUnknownCapability(t *testing.T) {
	m, _ := newTestMiddleware(t)

	d := m.PostToolCall(context.Background(), ToolCall{ID: "c1", Name: LoadToolName, Args: `{"capability":"warp_drive"}`}, capability.NewState())
	if d.Proceed {
		t.Fatal("unknown capability load should not proceed")
	}
	if !strings.Contains(d.Message, "Unknown capability 'warp_drive'") {
		t.Errorf("message = %q", d.Message)
	}
	if !strings.Contains(d.Message, "sql") {
		t.Errorf("message should list known ids: %q", d.Message)
	}
	if len(d.State.Loaded) != 0 {
		t.Error("failed load mutated the state")
	}
}

func TestLoadBadArgs(t *testing.T) {
	m, _ := newTestMiddleware(t)

	d := m.PostToolCall(context.Background(), ToolCall{ID: "c1", Name: LoadToolName, Args: `not json`}, capability.NewState())
	if d.Proceed {
		t.Fatal("malformed load args should not proceed")
	}
	if d.Message == "" {
		t.Error("expected a corrective message for malformed args")
	}
}

type fakeVersions struct {
	active map[string]*capability.Version
	used   []string
}

func (f *fakeVersions) ActiveVersion(_ context.Context, id string) (*capability.Version, error) {
	return f.active[id], nil
}

func (f *fakeVersions) RecordVersionUse(_ context.Context, id string, _ bool) error {
	f.used = append(f.used, id)
	return nil
}

func TestLoadRecordsActiveVersion(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(&capability.Capability{ID: "reports", Name: "Reports", ToolNames: []string{"build_report"}})

	vs := &fakeVersions{active: map[string]*capability.Version{
		"reports": {Number: 2, Active: true},
	}}
	m := New(reg, vs, zap.NewNop())

	d := m.PostToolCall(context.Background(), ToolCall{ID: "c1", Name: LoadToolName, Args: `{"capability":"reports"}`}, capability.NewState())
	if d.State.VersionsLoaded["reports"] != 2 {
		t.Errorf("versions_loaded = %v, want reports=2", d.State.VersionsLoaded)
	}

	m.RecordResult(context.Background(), "build_report", true)
	if len(vs.used) != 1 || vs.used[0] != "reports" {
		t.Errorf("RecordResult did not reach version source: %v", vs.used)
	}
}
