package capability

// Kind distinguishes a plain tool unlock from a documented skill bundle.
type Kind string

const (
	// KindTool unlocks a single tool and carries no extra content.
	KindTool Kind = "tool"
	// KindBundle unlocks multiple tools and exposes tiered documentation.
	KindBundle Kind = "bundle"
)

// Resource is a piece of capability documentation disclosed progressively:
// the summary tier is always shown once the capability is loaded, the detail
// tier only after the conversation asks for it.
type Resource struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}

// Capability is a named, loadable unit of agent functionality. It gates one
// or more tools: until a conversation loads the capability, those tools are
// withheld from the model and their invocation is refused.
//
// Capabilities are immutable once registered.
type Capability struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Kind        Kind       `json:"kind"`
	Resources   []Resource `json:"resources,omitempty"`
	ToolNames   []string   `json:"tool_names"`
	Source      string     `json:"source"` // "builtin", "plugin", "custom"
}
