package agent

import (
	"time"
)

// Persona defines an agent's identity and instructions.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt"`
}

// Status represents an agent's current state.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusThinking        Status = "thinking"
	StatusWaitingApproval Status = "waiting_approval"
)

// Agent is one configured assistant.
type Agent struct {
	Persona    Persona   `json:"persona"`
	Status     Status    `json:"status"`
	ProviderID string    `json:"provider_id"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
