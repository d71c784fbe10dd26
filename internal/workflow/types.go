package workflow

import "time"

// TaskStatus tracks execution state.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Team is a group of agents that handle a request together.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is an agent's role within a team.
type Member struct {
	AgentID     string `json:"agent_id"`
	Role        string `json:"role"`
	Instruction string `json:"instruction,omitempty"`
}

// Task is one unit of work assigned to a member.
type Task struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Role        string     `json:"role"`
	Input       string     `json:"input"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskResult holds the output of a completed task.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	AgentID  string        `json:"agent_id"`
	Role     string        `json:"role"`
	Output   string        `json:"output"`
	Status   TaskStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TeamResult is the aggregated output of one team run.
type TeamResult struct {
	TeamID   string        `json:"team_id"`
	Tasks    []*TaskResult `json:"tasks"`
	Summary  string        `json:"summary"`
	Duration time.Duration `json:"duration"`
}
