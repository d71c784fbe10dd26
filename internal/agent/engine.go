package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
	"github.com/margrave/gatehouse/internal/capability"
	ctxmgr "github.com/margrave/gatehouse/internal/context"
	"github.com/margrave/gatehouse/internal/gate"
	"github.com/margrave/gatehouse/internal/provider"
)

// ErrAgentNotFound is returned when an agent ID doesn't exist.
var ErrAgentNotFound = fmt.Errorf("agent not found")

// Engine manages agent execution. Each turn runs the gated tool loop:
// the gate middleware decides which tools the model sees and whether a
// proposed call is admitted, and the approval gate suspends risky calls
// until an operator answers.
type Engine struct {
	agents    map[string]*Agent
	router    *provider.Router
	gate      *gate.Middleware
	approvals *approval.Gate
	sessions  SessionStore
	tools     *ToolRegistry
	contexts  *ctxmgr.Manager
	locks     map[string]*sync.Mutex
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewEngine creates an agent engine. approvals may be nil to run without
// human approval.
func NewEngine(router *provider.Router, gm *gate.Middleware, approvals *approval.Gate, sessions SessionStore, logger *zap.Logger) *Engine {
	e := &Engine{
		agents:    make(map[string]*Agent),
		router:    router,
		gate:      gm,
		approvals: approvals,
		sessions:  sessions,
		tools:     NewToolRegistry(),
		locks:     make(map[string]*sync.Mutex),
		logger:    logger,
	}
	RegisterBuiltinTools(e.tools, e)
	return e
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry { return e.tools }

// SetContextManager enables context window compression for long sessions.
func (e *Engine) SetContextManager(m *ctxmgr.Manager) { e.contexts = m }

// Sessions returns the engine's session store.
func (e *Engine) Sessions() SessionStore { return e.sessions }

// Register adds an agent to the engine.
func (e *Engine) Register(a *Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a.Persona.ID == "" {
		a.Persona.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	a.Status = StatusIdle
	e.agents[a.Persona.ID] = a
	e.logger.Info("registered agent",
		zap.String("id", a.Persona.ID),
		zap.String("name", a.Persona.Name))
}

// Get returns an agent by ID.
func (e *Engine) Get(id string) (*Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[id]
	return a, ok
}

// List returns all registered agents.
func (e *Engine) List() []*Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]*Agent, 0, len(e.agents))
	for _, a := range e.agents {
		result = append(result, a)
	}
	return result
}

// Remove deletes an agent. Existing sessions keep their history.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents[id]; !ok {
		return false
	}
	delete(e.agents, id)
	return true
}

// ExecuteResult holds the output of an agent turn.
type ExecuteResult struct {
	SessionID    string           `json:"session_id"`
	Content      string           `json:"content"`
	Trace        *TurnTrace       `json:"trace,omitempty"`
	Usage        provider.Usage   `json:"usage"`
	Capabilities capability.State `json:"capabilities"`
}

// Execute runs one turn of a conversation. An empty sessionID starts a new
// session. Turns on the same session are serialized; capability state is
// read once at the start and written back once at the end.
func (e *Engine) Execute(ctx context.Context, agentID, sessionID, userMsg string) (*ExecuteResult, error) {
	a, ok := e.Get(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	sess, err := e.loadOrCreate(ctx, agentID, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockSession(sess.ID)
	defer unlock()

	trace := &TurnTrace{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		SessionID: sess.ID,
		StartedAt: time.Now(),
	}

	e.setStatus(agentID, StatusThinking)
	defer e.setStatus(agentID, StatusIdle)

	state := sess.Capabilities
	sess.Messages = append(sess.Messages, provider.Message{Role: "user", Content: userMsg})

	const maxToolRounds = 8
	const toolBudgetMessage = "I reached the tool call limit for this turn before finishing. The results so far are kept in this conversation; send another message to continue."
	var resp *provider.ChatResponse
	for round := 0; round < maxToolRounds; round++ {
		addendum, _ := e.gate.PreTurn(state)
		req := &provider.ChatRequest{
			Model:     a.Model,
			Messages:  e.buildMessages(ctx, a, sess, addendum),
			MaxTokens: 4096,
		}
		req.Tools = e.availableTools(state)
		if len(req.Tools) > 0 {
			req.ToolChoice = "auto"
		}

		resp, err = e.router.Route(ctx, agentID, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 || resp.FinishReason != "tool_calls" {
			break
		}

		sess.Messages = append(sess.Messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			trace.add(StepToolCall, tc.Function.Name)
			result := e.runToolCall(ctx, a, sess, tc, &state, trace)
			sess.Messages = append(sess.Messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}

		e.logger.Debug("tool round complete",
			zap.Int("round", round+1),
			zap.Int("tool_calls", len(resp.ToolCalls)))
	}

	if resp == nil {
		return nil, fmt.Errorf("no response from provider")
	}
	if resp.FinishReason == "tool_calls" {
		// The round budget ran out while the model was still asking for
		// tools. Its last message is already in the transcript with the
		// tool results; close the turn with a terminal message instead of
		// echoing it.
		resp = &provider.ChatResponse{
			Content:      toolBudgetMessage,
			FinishReason: "stop",
			Usage:        resp.Usage,
		}
	}

	sess.Messages = append(sess.Messages, provider.Message{Role: "assistant", Content: resp.Content})
	sess.Capabilities = state
	sess.UpdatedAt = time.Now()

	// Persist even when the turn's context died during an approval wait;
	// the cancelled outcome must survive.
	if err := e.sessions.SaveSession(context.WithoutCancel(ctx), sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	trace.Steps = append(trace.Steps, TurnStep{
		Type:       StepResponse,
		Content:    resp.Content,
		Timestamp:  time.Now(),
		TokensUsed: resp.Usage.TotalTokens,
	})
	trace.Duration = time.Since(trace.StartedAt)

	return &ExecuteResult{
		SessionID:    sess.ID,
		Content:      resp.Content,
		Trace:        trace,
		Usage:        resp.Usage,
		Capabilities: state,
	}, nil
}

// runToolCall admits one proposed tool call through the gate and, when its
// policy demands it, through human approval. The returned string becomes
// the tool result message.
func (e *Engine) runToolCall(ctx context.Context, a *Agent, sess *Session, tc provider.ToolCall, state *capability.State, trace *TurnTrace) string {
	d := e.gate.PostToolCall(ctx, gate.ToolCall{
		ID:   tc.ID,
		Name: tc.Function.Name,
		Args: tc.Function.Arguments,
	}, *state)
	*state = d.State
	if !d.Proceed {
		if tc.Function.Name == gate.LoadToolName {
			trace.add(StepLoad, d.Message)
		} else {
			trace.add(StepGateMessage, d.Message)
		}
		return d.Message
	}

	if e.approvals != nil {
		if _, required := e.approvals.PolicyFor(tc.Function.Name); required {
			return e.runApproved(ctx, a, sess, tc, trace)
		}
	}
	return e.invoke(ctx, tc, trace)
}

// runApproved opens an approval request, blocks until it resolves, and
// executes the tool only on approval.
func (e *Engine) runApproved(ctx context.Context, a *Agent, sess *Session, tc provider.ToolCall, trace *TurnTrace) string {
	msg := fmt.Sprintf("Agent %s wants to call %s", a.Persona.Name, tc.Function.Name)
	req, err := e.approvals.Request(ctx, tc.ID, sess.ID, tc.Function.Name, tc.Function.Arguments, msg, "")
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	e.setStatus(a.Persona.ID, StatusWaitingApproval)
	status, reason, err := e.approvals.Await(ctx, req.ID)
	e.setStatus(a.Persona.ID, StatusThinking)
	trace.add(StepApproval, fmt.Sprintf("%s: %s", tc.Function.Name, status))

	switch status {
	case approval.StatusApproved:
		return e.invoke(ctx, tc, trace)
	case approval.StatusRejected:
		if reason != "" {
			return fmt.Sprintf("The operator rejected this call: %s. Do not retry it; adjust your approach or tell the user.", reason)
		}
		return "The operator rejected this call. Do not retry it; adjust your approach or tell the user."
	case approval.StatusExpired:
		return "The approval request expired before an operator responded. The call was not executed."
	default:
		if err != nil {
			e.logger.Warn("approval wait interrupted", zap.Error(err))
		}
		return "The approval request was cancelled. The call was not executed."
	}
}

func (e *Engine) invoke(ctx context.Context, tc provider.ToolCall, trace *TurnTrace) string {
	result, err := e.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
	e.gate.RecordResult(ctx, tc.Function.Name, err == nil)
	if err != nil {
		result = fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	trace.add(StepToolResult, fmt.Sprintf("%s -> %s", tc.Function.Name, truncate(result, 200)))
	return result
}

// availableTools returns the definitions the model may see this round:
// ungated tools, gated tools whose capability is loaded, and the load tool.
func (e *Engine) availableTools(state capability.State) []provider.Tool {
	unlocked := make(map[string]bool)
	_, allowed := e.gate.PreTurn(state)
	for _, name := range allowed {
		unlocked[name] = true
	}

	var out []provider.Tool
	for _, def := range e.tools.Definitions() {
		name := def.Function.Name
		if !e.gate.IsGated(name) || unlocked[name] {
			out = append(out, def)
		}
	}
	out = append(out, gate.LoadToolDefinition())
	return out
}

func (e *Engine) loadOrCreate(ctx context.Context, agentID, sessionID string) (*Session, error) {
	if sessionID == "" {
		return NewSession(agentID), nil
	}
	sess, err := e.sessions.GetSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		s := NewSession(agentID)
		s.ID = sessionID
		return s, nil
	}
	return nil, fmt.Errorf("load session: %w", err)
}

// lockSession serializes turns per session id.
func (e *Engine) lockSession(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (e *Engine) setStatus(agentID string, s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.agents[agentID]; ok {
		a.Status = s
		a.UpdatedAt = time.Now()
	}
}

func (e *Engine) buildMessages(ctx context.Context, a *Agent, sess *Session, addendum string) []provider.Message {
	system := []provider.Message{
		{Role: "system", Content: a.Persona.SystemPrompt},
	}
	var extras []provider.Message
	if profile := LoadProfile(a.Persona.ID); profile != "" {
		extras = append(extras, provider.Message{Role: "system", Content: profile})
	}
	if addendum != "" {
		extras = append(extras, provider.Message{Role: "system", Content: addendum})
	}

	if e.contexts != nil {
		w := &ctxmgr.ContextWindow{
			SystemPrompt: ctxmgr.NewBlock("system", ctxmgr.PrioritySystem, true, system),
			HistoryBlock: ctxmgr.NewBlock("history", ctxmgr.PriorityHistory, false,
				append([]provider.Message(nil), sess.Messages...)),
		}
		if len(extras) > 0 {
			w.ProfileBlock = ctxmgr.NewBlock("profile", ctxmgr.PriorityProfile, true, extras)
		}
		msgs, err := e.contexts.Fit(ctx, w)
		if err == nil {
			return msgs
		}
		e.logger.Warn("context fit failed, sending unmanaged window", zap.Error(err))
	}

	msgs := append(system, extras...)
	return append(msgs, sess.Messages...)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
