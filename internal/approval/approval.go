package approval

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an approval request. Transitions are
// one-way out of pending; every other status is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool { return s != StatusPending }

// Decision is an operator's answer to a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Request is one human-approval record for a proposed tool call.
type Request struct {
	ID         string     `json:"id"`
	CallID     string     `json:"call_id"`
	SessionID  string     `json:"session_id"`
	ToolName   string     `json:"tool_name"`
	Args       string     `json:"args"`
	Message    string     `json:"message"`
	Impact     string     `json:"impact,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Policy configures how a tool's invocations are approved.
// A zero Timeout means requests never expire.
type Policy struct {
	RequireApproval       bool          `json:"require_approval"`
	Timeout               time.Duration `json:"timeout"`
	RequireReasonOnReject bool          `json:"require_reason_on_reject"`
}

// NotFoundError reports an unknown approval request id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("approval request %q not found", e.ID)
}

// AlreadyResolvedError reports a resolution attempt on a request that has
// left pending. The request is untouched.
type AlreadyResolvedError struct {
	ID     string
	Status Status
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("approval request %q already %s", e.ID, e.Status)
}

// ValidationError reports a malformed resolution, e.g. a rejection without
// the required reason.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
