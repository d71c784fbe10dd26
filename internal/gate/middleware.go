package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/margrave/gatehouse/internal/capability"
	"github.com/margrave/gatehouse/internal/provider"
	"go.uber.org/zap"
)

// LoadToolName is the tool the model calls to unlock a capability.
const LoadToolName = "load_capability"

// VersionSource resolves the active version of a capability and records
// per-version usage. Optional; a nil source disables version bookkeeping.
type VersionSource interface {
	ActiveVersion(ctx context.Context, capID string) (*capability.Version, error)
	RecordVersionUse(ctx context.Context, capID string, success bool) error
}

// Decision is the outcome of admitting a proposed tool call.
// When Proceed is false, Message replaces the tool's result in the
// conversation and State carries any capability-state change; the tool's
// backend is never invoked.
type Decision struct {
	Proceed bool
	Message string
	State   capability.State
}

// ToolCall is the transient record of one proposed tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// Middleware sits between the agent turn loop and the capability registry.
// Before each model call it computes the prompt addendum and the unlocked
// tool set; after each proposed tool call it either admits the call or
// synthesizes a correction message.
//
// Gating policy lives here and only here; tool wrappers must not repeat
// the check.
type Middleware struct {
	registry *capability.Registry
	versions VersionSource
	logger   *zap.Logger
}

// New creates the gating middleware. versions may be nil.
func New(reg *capability.Registry, versions VersionSource, logger *zap.Logger) *Middleware {
	return &Middleware{
		registry: reg,
		versions: versions,
		logger:   logger,
	}
}

// PreTurn computes the system-prompt addendum and the gated tool names the
// conversation has unlocked so far. Tools with no owning capability are not
// listed; they are always available and bypass gating entirely.
func (m *Middleware) PreTurn(s capability.State) (string, []string) {
	addendum := capability.Summarize(s, m.registry)
	catalog := m.catalogPrompt(s)
	if catalog != "" {
		if addendum != "" {
			addendum += "\n"
		}
		addendum += catalog
	}
	return addendum, m.registry.ResolveTools(s.Loaded)
}

// catalogPrompt lists capabilities not yet loaded so the model knows what it
// can ask for.
func (m *Middleware) catalogPrompt(s capability.State) string {
	var pending []*capability.Capability
	for _, c := range m.registry.List() {
		if !s.IsLoaded(c.ID) {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Available Capabilities\n")
	b.WriteString("Load a capability with the load_capability tool before using its tools.\n")
	for _, c := range pending {
		fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Description)
	}
	return b.String()
}

// IsGated reports whether a tool name is owned by any capability.
func (m *Middleware) IsGated(tool string) bool {
	_, ok := m.registry.OwnerOf(tool)
	return ok
}

// PostToolCall validates a proposed tool call against the conversation's
// capability state. Load requests are absorbed here; gated tools whose
// capability is not loaded are refused with a correction message. Errors
// never escape into the turn loop; every failure becomes a message the
// model can act on.
func (m *Middleware) PostToolCall(ctx context.Context, call ToolCall, s capability.State) Decision {
	if call.Name == LoadToolName {
		return m.handleLoad(ctx, call, s)
	}

	owner, gated := m.registry.OwnerOf(call.Name)
	if !gated {
		return Decision{Proceed: true, State: s}
	}
	if !s.IsLoaded(owner.ID) {
		m.logger.Debug("gated tool refused",
			zap.String("tool", call.Name),
			zap.String("capability", owner.ID))
		return Decision{
			State: s,
			Message: fmt.Sprintf(
				"The '%s' tool requires the '%s' capability to be loaded first. "+
					"Use load_capability('%s') before using this tool.",
				call.Name, owner.ID, owner.ID),
		}
	}
	return Decision{Proceed: true, State: s}
}

type loadArgs struct {
	Capability string `json:"capability"`
	Detail     bool   `json:"detail,omitempty"`
}

func (m *Middleware) handleLoad(ctx context.Context, call ToolCall, s capability.State) Decision {
	var args loadArgs
	if err := json.Unmarshal([]byte(call.Args), &args); err != nil || args.Capability == "" {
		return Decision{
			State:   s,
			Message: "load_capability requires a 'capability' argument naming the capability to load.",
		}
	}

	c, err := m.registry.Get(args.Capability)
	if err != nil {
		// Unknown id is a recoverable conversation error, never fatal.
		return Decision{
			State:   s,
			Message: fmt.Sprintf("Unknown capability '%s'. %s", args.Capability, m.knownIDs()),
		}
	}

	next, already := capability.MarkLoaded(s, c.ID)
	if args.Detail {
		next = capability.Expand(next, c.ID)
	}
	if m.versions != nil {
		if v, verr := m.versions.ActiveVersion(ctx, c.ID); verr == nil && v != nil {
			next = capability.RecordVersion(next, c.ID, v.Number)
		}
	}

	if already {
		return Decision{
			State: next,
			Message: fmt.Sprintf(
				"Capability '%s' is already loaded; there is no need to load it again. "+
					"Its tools remain available: %s.",
				c.ID, strings.Join(c.ToolNames, ", ")),
		}
	}

	m.logger.Info("capability loaded",
		zap.String("capability", c.ID),
		zap.Int("load_count", next.LoadCount(c.ID)))

	return Decision{
		State: next,
		Message: fmt.Sprintf(
			"Capability '%s' loaded. The following tools are now available: %s.",
			c.ID, strings.Join(c.ToolNames, ", ")),
	}
}

func (m *Middleware) knownIDs() string {
	var ids []string
	for _, c := range m.registry.List() {
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return "No capabilities are registered."
	}
	return "Known capabilities: " + strings.Join(ids, ", ") + "."
}

// RecordResult feeds an executed gated tool's outcome into the owning
// capability's active-version metrics.
func (m *Middleware) RecordResult(ctx context.Context, toolName string, ok bool) {
	if m.versions == nil {
		return
	}
	owner, gated := m.registry.OwnerOf(toolName)
	if !gated {
		return
	}
	if err := m.versions.RecordVersionUse(ctx, owner.ID, ok); err != nil {
		m.logger.Warn("recording version use failed",
			zap.String("capability", owner.ID), zap.Error(err))
	}
}

// LoadToolDefinition returns the load_capability tool definition offered to
// the model on every turn.
func LoadToolDefinition() provider.Tool {
	return provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        LoadToolName,
			Description: "Load a capability to unlock its tools and documentation",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"capability": map[string]string{"type": "string", "description": "Capability id to load"},
					"detail":     map[string]string{"type": "boolean", "description": "Also load full documentation instead of the summary"},
				},
				"required": []string{"capability"},
			},
		},
	}
}
