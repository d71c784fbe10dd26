package gate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/margrave/gatehouse/internal/provider"
)

// SQLBackend executes read-only queries against the analytics warehouse.
type SQLBackend interface {
	Query(ctx context.Context, query string) (string, error)
	DescribeTable(ctx context.Context, table string) (string, error)
}

// IssueBackend talks to the issue tracker.
type IssueBackend interface {
	Search(ctx context.Context, jql string) (string, error)
	Create(ctx context.Context, project, summary, description string) (string, error)
}

// SheetBackend reads and writes spreadsheet ranges.
type SheetBackend interface {
	ReadRange(ctx context.Context, rng string) (string, error)
	WriteRange(ctx context.Context, rng, csv string) (string, error)
}

// Backends bundles the domain backends the gated tools delegate to.
// Nil entries leave the corresponding tools unregistered.
type Backends struct {
	SQL    SQLBackend
	Issues IssueBackend
	Sheets SheetBackend
}

// Binder receives tool definitions and handlers; satisfied by the agent
// package's tool registry.
type Binder interface {
	Register(def provider.Tool, handler func(ctx context.Context, args string) (string, error))
}

// RegisterDomainTools wires the gated domain tools into a registry. The
// wrappers delegate straight to their backends: admission already happened
// in Middleware.PostToolCall, and repeating the check here would split the
// gating policy across two places.
func RegisterDomainTools(reg Binder, b Backends) {
	if b.SQL != nil {
		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "run_query",
				Description: "Run a read-only SQL query against the analytics warehouse",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]string{"type": "string", "description": "A single SELECT statement"},
					},
					"required": []string{"query"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.SQL.Query(ctx, p.Query)
		})

		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "describe_table",
				Description: "Describe a warehouse table's columns and types",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"table": map[string]string{"type": "string", "description": "Table name"},
					},
					"required": []string{"table"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				Table string `json:"table"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.SQL.DescribeTable(ctx, p.Table)
		})
	}

	if b.Issues != nil {
		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "search_issues",
				Description: "Search the issue tracker with a JQL query",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"jql": map[string]string{"type": "string", "description": "JQL query string"},
					},
					"required": []string{"jql"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				JQL string `json:"jql"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.Issues.Search(ctx, p.JQL)
		})

		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "create_issue",
				Description: "Create an issue in the tracker",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"project":     map[string]string{"type": "string", "description": "Project key"},
						"summary":     map[string]string{"type": "string", "description": "One-line summary"},
						"description": map[string]string{"type": "string", "description": "Issue body"},
					},
					"required": []string{"project", "summary"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				Project     string `json:"project"`
				Summary     string `json:"summary"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.Issues.Create(ctx, p.Project, p.Summary, p.Description)
		})
	}

	if b.Sheets != nil {
		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "read_range",
				Description: "Read a spreadsheet range as CSV",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"range": map[string]string{"type": "string", "description": "A1 range, e.g. Sheet1!A1:C10"},
					},
					"required": []string{"range"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				Range string `json:"range"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.Sheets.ReadRange(ctx, p.Range)
		})

		reg.Register(provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "write_range",
				Description: "Overwrite a spreadsheet range with CSV rows",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"range": map[string]string{"type": "string", "description": "A1 range to overwrite"},
						"rows":  map[string]string{"type": "string", "description": "CSV rows"},
					},
					"required": []string{"range", "rows"},
				},
			},
		}, func(ctx context.Context, args string) (string, error) {
			var p struct {
				Range string `json:"range"`
				Rows  string `json:"rows"`
			}
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			return b.Sheets.WriteRange(ctx, p.Range, p.Rows)
		})
	}
}
