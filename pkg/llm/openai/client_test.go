package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/user/thinkstream/pkg/llm"
)

func writeSSE(w http.ResponseWriter, events ...[2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
	}
}

func TestStreamYieldsFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid auth header")
		}
		writeSSE(w,
			[2]string{"response.created", `{"type":"response.created"}`},
			[2]string{"response.output_text.delta", `{"type":"response.output_text.delta","delta":"4"}`},
			[2]string{"response.completed", `{"type":"response.completed","response":{"usage":{"input_tokens":3,"output_tokens":1}}}`},
		)
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "test-key"})
	stream, err := client.Stream(context.Background(), llm.Request{
		Model:    "gpt-5-mini",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "What is 2+2?"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var types []string
	for stream.Next() {
		types = append(types, stream.Frame().Type)
	}
	if err := stream.Err(); err != nil {
		t.Fatal(err)
	}
	if len(types) != 3 {
		t.Fatalf("expected 3 frames, got %d: %v", len(types), types)
	}
	if types[1] != "response.output_text.delta" {
		t.Errorf("expected output_text delta second, got %q", types[1])
	}
}

func TestStreamRequestFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("expected path '/v1/responses', got %q", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("expected SSE accept header, got %q", r.Header.Get("Accept"))
		}

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("invalid request JSON: %v", err)
		}
		if req["stream"] != true {
			t.Error("expected stream=true")
		}
		reasoning, _ := req["reasoning"].(map[string]any)
		if reasoning["effort"] != "high" {
			t.Errorf("expected effort high, got %v", reasoning["effort"])
		}
		input, _ := req["input"].([]any)
		if len(input) != 2 {
			t.Fatalf("expected 2 input messages, got %d", len(input))
		}
		first, _ := input[0].(map[string]any)
		if first["role"] != "developer" {
			t.Errorf("expected system prompt sent as developer role, got %v", first["role"])
		}
		tools, _ := req["tools"].([]any)
		if len(tools) != 2 {
			t.Fatalf("expected 2 tools, got %d", len(tools))
		}
		fn, _ := tools[0].(map[string]any)
		if fn["type"] != "function" || fn["name"] != "fetch_urls" {
			t.Errorf("unexpected function tool: %v", fn)
		}
		hosted, _ := tools[1].(map[string]any)
		if hosted["type"] != "web_search_preview" {
			t.Errorf("unexpected hosted tool: %v", hosted)
		}
		writeSSE(w, [2]string{"response.completed", `{}`})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL + "/v1", APIKey: "k"})
	stream, err := client.Stream(context.Background(), llm.Request{
		Model:  "o4-mini",
		Effort: llm.EffortHigh,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "hi"},
		},
		Tools: []llm.ToolDecl{
			{Kind: llm.ToolFunction, Name: "fetch_urls", Parameters: json.RawMessage(`{"type":"object"}`)},
			{Kind: llm.ToolHosted, Name: "web_search"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for stream.Next() {
	}
	stream.Close()
}

func TestStreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "bad"})
	_, err := client.Stream(context.Background(), llm.Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 StatusError, got %v", err)
	}
}

func TestStreamRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writeSSE(w, [2]string{"response.completed", `{}`})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "k"})
	client.retry.InitialDelay = 0

	stream, err := client.Stream(context.Background(), llm.Request{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	stream.Close()
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}
