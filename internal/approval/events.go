package approval

import "time"

// Event types emitted by the gate.
const (
	EventRequested = "approval_requested"
	EventResolved  = "approval_resolved"
)

// Event is the notification pushed to operator-facing channels whenever an
// approval request is created or reaches a terminal status.
type Event struct {
	Type       string    `json:"type"`
	ApprovalID string    `json:"approval_id"`
	SessionID  string    `json:"session_id"`
	ToolName   string    `json:"tool_name"`
	Status     Status    `json:"status"`
	Actor      string    `json:"actor,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Emitter delivers events to the transport layer. Implementations must not
// block the gate; slow delivery happens on the emitter's side.
type Emitter interface {
	Emit(ev Event)
}
