package context

import "github.com/margrave/gatehouse/internal/provider"

// BlockPriority defines compression priority (higher = compressed last).
type BlockPriority int

const (
	PriorityHistory    BlockPriority = 1 // compressed first
	PriorityToolResult BlockPriority = 2
	PriorityProfile    BlockPriority = 3 // never compressed
	PrioritySystem     BlockPriority = 4 // never compressed
)

// Block is a labeled group of messages with a compression priority.
type Block struct {
	Name     string             `json:"name"`
	Priority BlockPriority      `json:"priority"`
	Messages []provider.Message `json:"messages"`
	Tokens   int                `json:"tokens"`
	Fixed    bool               `json:"fixed"` // if true, never compress
}

// NewBlock builds a block with its token estimate filled in.
func NewBlock(name string, priority BlockPriority, fixed bool, msgs []provider.Message) *Block {
	return &Block{
		Name:     name,
		Priority: priority,
		Messages: msgs,
		Tokens:   estimateTokens(msgs),
		Fixed:    fixed,
	}
}

// ContextWindow holds all message blocks for an LLM call. The history block
// carries the full interleaved conversation, tool results included.
type ContextWindow struct {
	SystemPrompt *Block `json:"system_prompt"`
	ProfileBlock *Block `json:"profile_block"`
	HistoryBlock *Block `json:"history_block"`
}

// Config holds context manager settings.
type Config struct {
	MaxTokens    int     // model's max context window
	ReserveRatio float64 // fraction reserved for response (default 0.3)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:    128000,
		ReserveRatio: 0.3,
	}
}
