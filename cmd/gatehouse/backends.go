package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// In-memory domain backends. They answer with plausible canned data so the
// full gate and approval flow can run without external systems.

type stubSQL struct{}

func (stubSQL) Query(_ context.Context, query string) (string, error) {
	q := strings.TrimSpace(strings.ToLower(query))
	if !strings.HasPrefix(q, "select") {
		return "", fmt.Errorf("only SELECT statements are allowed")
	}
	out, _ := json.Marshal(map[string]interface{}{
		"query": query,
		"rows":  [][]string{{"42"}},
	})
	return string(out), nil
}

func (stubSQL) DescribeTable(_ context.Context, table string) (string, error) {
	out, _ := json.Marshal(map[string]interface{}{
		"table": table,
		"columns": []map[string]string{
			{"name": "id", "type": "bigint"},
			{"name": "created_at", "type": "timestamptz"},
		},
	})
	return string(out), nil
}

type stubIssues struct{}

func (stubIssues) Search(_ context.Context, jql string) (string, error) {
	out, _ := json.Marshal(map[string]interface{}{
		"jql":    jql,
		"issues": []string{},
	})
	return string(out), nil
}

var issueSeq struct {
	mu sync.Mutex
	n  int
}

func (stubIssues) Create(_ context.Context, project, summary, _ string) (string, error) {
	issueSeq.mu.Lock()
	issueSeq.n++
	key := fmt.Sprintf("%s-%d", project, issueSeq.n)
	issueSeq.mu.Unlock()

	out, _ := json.Marshal(map[string]string{
		"key":     key,
		"summary": summary,
		"created": time.Now().Format(time.RFC3339),
	})
	return string(out), nil
}

type stubSheets struct{}

func (stubSheets) ReadRange(_ context.Context, rng string) (string, error) {
	out, _ := json.Marshal(map[string]interface{}{
		"range": rng,
		"rows":  [][]string{},
	})
	return string(out), nil
}

func (stubSheets) WriteRange(_ context.Context, rng, rows string) (string, error) {
	n := strings.Count(rows, "\n") + 1
	out, _ := json.Marshal(map[string]interface{}{
		"range":        rng,
		"rows_written": n,
	})
	return string(out), nil
}
