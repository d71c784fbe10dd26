package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/agent"
)

// Executor runs one agent turn. Satisfied by the agent engine.
type Executor interface {
	Execute(ctx context.Context, agentID, sessionID, userMsg string) (*agent.ExecuteResult, error)
}

// Coordinator fans a request out to a team's members and aggregates their
// answers. Each task runs in its own session, so capability state never
// crosses members.
type Coordinator struct {
	engine Executor
	teams  map[string]*Team
	pool   chan struct{}
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewCoordinator creates a coordinator with a bounded goroutine pool.
func NewCoordinator(engine Executor, poolSize int, logger *zap.Logger) *Coordinator {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Coordinator{
		engine: engine,
		teams:  make(map[string]*Team),
		pool:   make(chan struct{}, poolSize),
		logger: logger,
	}
}

// RegisterTeam adds a team.
func (c *Coordinator) RegisterTeam(team *Team) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	team.CreatedAt = time.Now()
	c.teams[team.ID] = team
	c.logger.Info("registered team",
		zap.String("team", team.Name),
		zap.Int("members", len(team.Members)))
}

// GetTeam returns a team by ID.
func (c *Coordinator) GetTeam(id string) (*Team, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.teams[id]
	return t, ok
}

// ListTeams returns all registered teams.
func (c *Coordinator) ListTeams() []*Team {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Team, 0, len(c.teams))
	for _, t := range c.teams {
		out = append(out, t)
	}
	return out
}

// Run sends userMsg to every member in parallel and concatenates their
// outputs, one section per member in team order.
func (c *Coordinator) Run(ctx context.Context, teamID, userMsg string) (*TeamResult, error) {
	team, ok := c.GetTeam(teamID)
	if !ok {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	if len(team.Members) == 0 {
		return nil, fmt.Errorf("team %s has no members", teamID)
	}
	start := time.Now()

	results := make(chan *TaskResult, len(team.Members))
	var wg sync.WaitGroup
	order := make(map[string]int, len(team.Members))

	for i, m := range team.Members {
		task := &Task{
			ID:        uuid.New().String(),
			AgentID:   m.AgentID,
			Role:      m.Role,
			Input:     memberInput(m, userMsg),
			Status:    TaskPending,
			CreatedAt: time.Now(),
		}
		order[task.ID] = i

		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			c.pool <- struct{}{}
			defer func() { <-c.pool }()

			results <- c.executeTask(ctx, task)
		}(task)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var tasks []*TaskResult
	for r := range results {
		tasks = append(tasks, r)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return order[tasks[i].TaskID] < order[tasks[j].TaskID]
	})

	return &TeamResult{
		TeamID:   teamID,
		Tasks:    tasks,
		Summary:  summarize(tasks),
		Duration: time.Since(start),
	}, nil
}

func (c *Coordinator) executeTask(ctx context.Context, task *Task) *TaskResult {
	start := time.Now()
	now := start
	task.StartedAt = &now
	task.Status = TaskRunning

	c.logger.Info("executing task",
		zap.String("task", task.ID),
		zap.String("agent", task.AgentID))

	result, err := c.engine.Execute(ctx, task.AgentID, "", task.Input)
	if err != nil {
		task.Status = TaskFailed
		return &TaskResult{
			TaskID:   task.ID,
			AgentID:  task.AgentID,
			Role:     task.Role,
			Status:   TaskFailed,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	done := time.Now()
	task.CompletedAt = &done
	task.Status = TaskDone

	return &TaskResult{
		TaskID:   task.ID,
		AgentID:  task.AgentID,
		Role:     task.Role,
		Output:   result.Content,
		Status:   TaskDone,
		Duration: time.Since(start),
	}
}

func memberInput(m Member, userMsg string) string {
	if m.Instruction == "" {
		return userMsg
	}
	return fmt.Sprintf("%s\n\n%s", m.Instruction, userMsg)
}

func summarize(tasks []*TaskResult) string {
	var b strings.Builder
	for _, t := range tasks {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		label := t.Role
		if label == "" {
			label = t.AgentID
		}
		if t.Status == TaskFailed {
			fmt.Fprintf(&b, "## %s\n(failed: %s)", label, t.Error)
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s", label, t.Output)
	}
	return b.String()
}
