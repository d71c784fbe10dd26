package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/agent"
)

type fakeExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeExecutor) Execute(_ context.Context, agentID, _, userMsg string) (*agent.ExecuteResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, agentID)
	f.mu.Unlock()
	if err, ok := f.errs[agentID]; ok {
		return nil, err
	}
	out, ok := f.outputs[agentID]
	if !ok {
		out = "ok: " + userMsg
	}
	return &agent.ExecuteResult{Content: out}, nil
}

func TestRunAggregatesInMemberOrder(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"analyst":  "analysis here",
		"reviewer": "review here",
	}}
	c := NewCoordinator(exec, 4, zap.NewNop())
	c.RegisterTeam(&Team{
		ID:   "team-1",
		Name: "Reporting",
		Members: []Member{
			{AgentID: "analyst", Role: "Analyst"},
			{AgentID: "reviewer", Role: "Reviewer"},
		},
	})

	res, err := c.Run(context.Background(), "team-1", "quarterly numbers")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(res.Tasks))
	}
	if res.Tasks[0].AgentID != "analyst" || res.Tasks[1].AgentID != "reviewer" {
		t.Errorf("task order = %s, %s", res.Tasks[0].AgentID, res.Tasks[1].AgentID)
	}

	analystIdx := strings.Index(res.Summary, "## Analyst")
	reviewerIdx := strings.Index(res.Summary, "## Reviewer")
	if analystIdx < 0 || reviewerIdx < 0 || analystIdx > reviewerIdx {
		t.Errorf("summary sections out of order:\n%s", res.Summary)
	}
	if !strings.Contains(res.Summary, "analysis here") {
		t.Errorf("summary missing member output:\n%s", res.Summary)
	}
}

func TestRunMemberFailureIsIsolated(t *testing.T) {
	exec := &fakeExecutor{
		outputs: map[string]string{"analyst": "fine"},
		errs:    map[string]error{"reviewer": fmt.Errorf("provider down")},
	}
	c := NewCoordinator(exec, 4, zap.NewNop())
	c.RegisterTeam(&Team{
		ID: "team-1",
		Members: []Member{
			{AgentID: "analyst", Role: "Analyst"},
			{AgentID: "reviewer", Role: "Reviewer"},
		},
	})

	res, err := c.Run(context.Background(), "team-1", "go")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Tasks[0].Status != TaskDone {
		t.Errorf("healthy member status = %s", res.Tasks[0].Status)
	}
	if res.Tasks[1].Status != TaskFailed || res.Tasks[1].Error == "" {
		t.Errorf("failed member = %+v", res.Tasks[1])
	}
	if !strings.Contains(res.Summary, "failed: provider down") {
		t.Errorf("summary hides the failure:\n%s", res.Summary)
	}
}

func TestRunUnknownTeam(t *testing.T) {
	c := NewCoordinator(&fakeExecutor{}, 4, zap.NewNop())

	if _, err := c.Run(context.Background(), "missing", "hi"); err == nil {
		t.Fatal("unknown team should fail")
	}
}

func TestMemberInstructionPrefix(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, 1, zap.NewNop())
	c.RegisterTeam(&Team{
		ID: "team-1",
		Members: []Member{
			{AgentID: "analyst", Role: "Analyst", Instruction: "Focus on revenue."},
		},
	})

	res, err := c.Run(context.Background(), "team-1", "what happened in Q3?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Tasks[0].Output, "Focus on revenue.") {
		t.Errorf("instruction not prefixed: %q", res.Tasks[0].Output)
	}
}
