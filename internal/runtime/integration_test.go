//go:build integration

package runtime_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ctxengine "github.com/user/thinkstream/internal/context"
	"github.com/user/thinkstream/internal/render"
	"github.com/user/thinkstream/internal/runtime"
	"github.com/user/thinkstream/internal/runtime/tools"
	"github.com/user/thinkstream/internal/state"
	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
	"github.com/user/thinkstream/pkg/llm/openai"
)

func sse(w http.ResponseWriter, frames ...[2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range frames {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f[0], f[1])
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// TestEndToEnd runs one turn through the real HTTP client, a fetch tool
// continuation, the session logger and the renderer.
func TestEndToEnd(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "The answer is 42.")
	}))
	defer page.Close()

	args := mustJSON(t, map[string]any{"urls": []string{page.URL}})
	var requests atomic.Int32
	var secondBody atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch requests.Add(1) {
		case 1:
			sse(w,
				[2]string{"response.created", `{"type":"response.created"}`},
				[2]string{"response.reasoning_summary_text.delta", `{"delta":"Need to read the page."}`},
				[2]string{"response.output_item.added", `{"output_index":0,"item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"fetch_urls"}}`},
				[2]string{"response.function_call_arguments.delta", mustJSON(t, map[string]any{"output_index": 0, "item_id": "fc_1", "delta": args})},
				[2]string{"response.function_call_arguments.done", mustJSON(t, map[string]any{"output_index": 0, "item_id": "fc_1", "arguments": args})},
				[2]string{"response.completed", `{"response":{"usage":{"input_tokens":100,"output_tokens":20}}}`},
			)
		default:
			secondBody.Store(string(body))
			sse(w,
				[2]string{"response.created", `{"type":"response.created"}`},
				[2]string{"response.output_text.delta", `{"delta":"It is "}`},
				[2]string{"response.output_text.delta", `{"delta":"42."}`},
				[2]string{"response.completed", `{"response":{"usage":{"input_tokens":200,"output_tokens":10}}}`},
			)
		}
	}))
	defer upstream.Close()

	provider := openai.New(&llm.Config{BaseURL: upstream.URL, APIKey: "test-key"})
	engine, err := ctxengine.New("gpt-5-mini", 272000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	registry := tools.NewRegistry()
	registry.Register(tools.NewFetchURLs(tools.FetchOptions{Timeout: 5 * time.Second}))

	orch := runtime.New(provider, registry, engine, runtime.Options{MaxContinuations: runtime.DefaultMaxContinuations})

	logger, err := state.NewLogger(t.TempDir(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	var screen bytes.Buffer
	out, err := render.New(&screen, render.Options{})
	if err != nil {
		t.Fatal(err)
	}

	req := runtime.TurnRequest{Model: "gpt-5-mini", Effort: llm.EffortLow, Input: "What does the page say?", EnabledTools: []string{"fetch_urls"}}
	if _, err := logger.StartTurn(state.TurnRequest{Model: req.Model, Effort: string(req.Effort), Input: req.Input, EnabledTools: req.EnabledTools}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sinks := types.Sinks{logger, out}
	var last types.StreamEvent
	var sawContinuation bool
	for ev := range orch.StreamTurn(ctx, req) {
		sinks.Observe(ev)
		if ev.Kind == types.EventToolContinuation {
			sawContinuation = true
		}
		if ev.Terminal() {
			last = ev
		}
	}
	if err := logger.Finalize(); err != nil {
		t.Fatal(err)
	}

	if last.Kind != types.EventComplete {
		t.Fatalf("expected complete, got %s: %s", last.Kind, last.Message)
	}
	if last.Content != "It is 42." {
		t.Errorf("unexpected answer %q", last.Content)
	}
	if last.Usage == nil || last.Usage.PromptTokens != 300 || last.Usage.CompletionTokens != 30 {
		t.Errorf("unexpected aggregate usage %+v", last.Usage)
	}
	if !sawContinuation {
		t.Error("expected a tool continuation")
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 upstream requests, got %d", requests.Load())
	}
	body, _ := secondBody.Load().(string)
	if !strings.Contains(body, "Tool fetch_urls returned") || !strings.Contains(body, "The answer is 42.") {
		t.Errorf("continuation request missing tool result: %s", body)
	}

	for _, name := range []string{"00001-request.md", "00001-tool-fetch_url-1.md", "00001-stats.md", "stats.md", "session.md"} {
		if _, err := os.Stat(filepath.Join(logger.Dir(), name)); err != nil {
			t.Errorf("expected %s in session dir: %v", name, err)
		}
	}
	if !strings.Contains(screen.String(), "It is 42.") {
		t.Errorf("renderer did not print the answer: %q", screen.String())
	}
}
