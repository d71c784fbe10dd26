package agent

import (
	"time"
)

// StepType identifies the kind of turn step.
type StepType string

const (
	StepToolCall    StepType = "tool_call"
	StepToolResult  StepType = "tool_result"
	StepGateMessage StepType = "gate_message"
	StepLoad        StepType = "capability_load"
	StepApproval    StepType = "approval"
	StepResponse    StepType = "response"
)

// TurnTrace records what happened during one agent turn: tool rounds, gate
// corrections, capability loads, and approval waits.
type TurnTrace struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	SessionID string        `json:"session_id"`
	Steps     []TurnStep    `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TurnStep is a single step in the trace.
type TurnStep struct {
	Type       StepType  `json:"type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int       `json:"tokens_used,omitempty"`
}

func (t *TurnTrace) add(typ StepType, content string) {
	t.Steps = append(t.Steps, TurnStep{Type: typ, Content: content, Timestamp: time.Now()})
}
