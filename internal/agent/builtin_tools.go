package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/margrave/gatehouse/internal/provider"
)

// RegisterBuiltinTools adds the always-available tools to a registry.
// These carry no capability and bypass gating.
func RegisterBuiltinTools(reg *ToolRegistry, e *Engine) {
	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "get_current_time",
			Description: "Get the current time",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf(`{"time":"%s"}`, time.Now().Format(time.RFC3339)), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "list_agents",
			Description: "List the configured agents",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		agents := e.List()
		type brief struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Role   string `json:"role"`
			Status string `json:"status"`
		}
		list := make([]brief, len(agents))
		for i, a := range agents {
			list[i] = brief{
				ID:     a.Persona.ID,
				Name:   a.Persona.Name,
				Role:   a.Persona.Role,
				Status: string(a.Status),
			}
		}
		b, _ := json.Marshal(list)
		return string(b), nil
	})
}
