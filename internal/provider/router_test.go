package provider

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

type stubProvider struct {
	id   string
	resp *ChatResponse
	err  error
	last *ChatRequest
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }

func (s *stubProvider) Chat(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	s.last = req
	return s.resp, s.err
}

func TestRouteDefaultsToFirstRegistered(t *testing.T) {
	r := NewRouter(zap.NewNop())
	first := &stubProvider{id: "first", resp: &ChatResponse{Content: "a"}}
	second := &stubProvider{id: "second", resp: &ChatResponse{Content: "b"}}
	r.Register(first)
	r.Register(second)

	resp, err := r.Route(context.Background(), "unbound-agent", &ChatRequest{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Content != "a" {
		t.Fatalf("expected default provider, got response %q", resp.Content)
	}
	if first.last == nil {
		t.Fatal("default provider was not called")
	}
}

func TestRouteHonorsBinding(t *testing.T) {
	r := NewRouter(zap.NewNop())
	first := &stubProvider{id: "first", resp: &ChatResponse{Content: "a"}}
	second := &stubProvider{id: "second", resp: &ChatResponse{Content: "b"}}
	r.Register(first)
	r.Register(second)
	r.Bind("analyst", "second")

	resp, err := r.Route(context.Background(), "analyst", &ChatRequest{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Content != "b" {
		t.Fatalf("expected bound provider, got response %q", resp.Content)
	}
}

func TestRouteWithoutProviders(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if _, err := r.Route(context.Background(), "anyone", &ChatRequest{}); err == nil {
		t.Fatal("expected error with no providers registered")
	}
}

func TestRouteStaleBindingFallsBack(t *testing.T) {
	r := NewRouter(zap.NewNop())
	first := &stubProvider{id: "first", resp: &ChatResponse{Content: "a"}}
	r.Register(first)
	r.Bind("analyst", "gone")

	resp, err := r.Route(context.Background(), "analyst", &ChatRequest{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Content != "a" {
		t.Fatalf("expected fallback to default, got %q", resp.Content)
	}
}
