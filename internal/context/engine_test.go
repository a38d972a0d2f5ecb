package context

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
)

func newEngine(t *testing.T, maxTokens, reserve int) *Engine {
	t.Helper()
	e, err := New("gpt-4o", maxTokens, reserve)
	if err != nil {
		t.Fatal(err)
	}
	e.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestNewEngineUnknownModel(t *testing.T) {
	e, err := New("some-future-model", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
}

func TestBuildMessagesBasic(t *testing.T) {
	e := newEngine(t, 128000, 4096)

	conv := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi there"},
		{Role: types.RoleUser, Content: "What is 2+2?"},
	}
	messages := e.BuildMessages(conv, nil)

	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != llm.RoleSystem {
		t.Errorf("expected system message first, got %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "2025-03-01T12:00:00Z") {
		t.Errorf("expected current time in system prompt, got %q", messages[0].Content)
	}
	if messages[1].Role != llm.RoleUser || messages[1].Content != "hello" {
		t.Errorf("unexpected first message: %+v", messages[1])
	}
	if messages[2].Role != llm.RoleAssistant {
		t.Errorf("expected assistant message, got %q", messages[2].Role)
	}
	if messages[3].Content != "What is 2+2?" {
		t.Errorf("expected input last, got %q", messages[3].Content)
	}
}

func TestBuildMessagesToolSection(t *testing.T) {
	e := newEngine(t, 128000, 4096)

	messages := e.BuildMessages([]types.Message{{Role: types.RoleUser, Content: "x"}}, []string{"fetch_urls", "run_code"})
	sys := messages[0].Content
	if !strings.Contains(sys, "Available tools: fetch_urls, run_code") {
		t.Errorf("expected tool list, got %q", sys)
	}
	if !strings.Contains(sys, "### fetch_urls") || !strings.Contains(sys, "### run_code") {
		t.Errorf("expected tool sections, got %q", sys)
	}

	messages = e.BuildMessages([]types.Message{{Role: types.RoleUser, Content: "x"}}, nil)
	if strings.Contains(messages[0].Content, "## Tools") {
		t.Errorf("expected no tool section without tools, got %q", messages[0].Content)
	}
}

func TestBuildMessagesBudgetDropsOldest(t *testing.T) {
	// Tiny budget: the system prompt alone uses most of it.
	e := newEngine(t, 600, 100)

	conv := make([]types.Message, 50)
	for i := range conv {
		conv[i] = types.Message{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("message %d takes up tokens in the context window budget.", i),
		}
	}
	messages := e.BuildMessages(conv, nil)

	if len(messages) >= 51 {
		t.Fatalf("expected truncation, got %d messages for 50 inputs", len(messages))
	}
	last := messages[len(messages)-1]
	if last.Content != conv[49].Content {
		t.Errorf("expected newest message kept last, got %q", last.Content)
	}
	if len(messages) > 1 && messages[1].Content == conv[0].Content {
		t.Error("expected oldest messages to be dropped first")
	}
}

func TestBuildMessagesAlwaysKeepsLast(t *testing.T) {
	e := newEngine(t, 10, 5)

	huge := strings.Repeat("word ", 1000)
	messages := e.BuildMessages([]types.Message{
		{Role: types.RoleUser, Content: "older"},
		{Role: types.RoleUser, Content: huge},
	}, nil)

	if len(messages) != 2 {
		t.Fatalf("expected system + last message, got %d", len(messages))
	}
	if messages[1].Content != huge {
		t.Error("expected the last message to be kept")
	}
}

func TestSetPrompt(t *testing.T) {
	e := newEngine(t, 128000, 4096)
	if err := e.SetPrompt("Custom prompt at {{.Time}}"); err != nil {
		t.Fatal(err)
	}
	messages := e.BuildMessages([]types.Message{{Role: types.RoleUser, Content: "x"}}, nil)
	if messages[0].Content != "Custom prompt at 2025-03-01T12:00:00Z" {
		t.Errorf("unexpected system prompt %q", messages[0].Content)
	}
	if err := e.SetPrompt("{{.Broken"); err == nil {
		t.Error("expected parse error")
	}
}
