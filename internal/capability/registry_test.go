package capability

import (
	"errors"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&Capability{ID: "sql", Name: "SQL", ToolNames: []string{"run_query"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	c, err := reg.Get("sql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Name != "SQL" {
		t.Errorf("got name %q, want SQL", c.Name)
	}

	_, err = reg.Get("nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != "nope" {
		t.Errorf("error carries id %q, want nope", nf.ID)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&Capability{ID: "sql"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(&Capability{ID: "sql"})
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestRegistryListOrder(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		if err := reg.Register(&Capability{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("got %d capabilities, want 3", len(list))
	}
	want := []string{"c", "a", "b"}
	for i, c := range list {
		if c.ID != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, c.ID, want[i])
		}
	}
}

func TestResolveTools(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Capability{ID: "sql", ToolNames: []string{"run_query", "describe_table"}})
	reg.Register(&Capability{ID: "jira", ToolNames: []string{"search_issues", "run_query"}})

	tools := reg.ResolveTools([]string{"sql", "jira", "unknown"})
	want := []string{"run_query", "describe_table", "search_issues"}
	if len(tools) != len(want) {
		t.Fatalf("got %v, want %v", tools, want)
	}
	for i := range want {
		if tools[i] != want[i] {
			t.Errorf("tools[%d] = %q, want %q", i, tools[i], want[i])
		}
	}
}

func TestOwnerOf(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Capability{ID: "sql", ToolNames: []string{"run_query"}})

	c, ok := reg.OwnerOf("run_query")
	if !ok || c.ID != "sql" {
		t.Fatalf("expected sql to own run_query, got %v %v", c, ok)
	}
	if _, ok := reg.OwnerOf("get_time"); ok {
		t.Error("get_time should have no owner")
	}
}
