package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestOpenAIChat(t *testing.T) {
	var gotAuth string
	var gotBody completionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "cmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{{
				"message":       map[string]interface{}{"role": "assistant", "content": "hello"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL, APIKey: "sk-test"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello" || resp.FinishReason != "stop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || len(gotBody.Messages) != 1 {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestOpenAIChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid api key", "type": "auth_error"},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	_, err := p.Chat(context.Background(), &ChatRequest{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("error should carry the API message, got %v", err)
	}
}
