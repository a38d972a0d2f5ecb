// Package context builds the outbound message list for a turn.
package context

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
)

// Engine assembles token-budgeted message lists for the model.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	prompt    *template.Template
	maxTokens int
	reserve   int
	now       func() time.Time
}

// PromptData is the data available to the system prompt template.
type PromptData struct {
	Time     string
	Tools    string
	ToolList []string
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4o").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		prompt:    tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
		now:       time.Now,
	}, nil
}

// SetPrompt replaces the system prompt template.
func (e *Engine) SetPrompt(text string) error {
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return fmt.Errorf("parse system prompt: %w", err)
	}
	e.prompt = tmpl
	return nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildMessages prepends the system prompt to conv and drops the oldest
// messages until the list fits the input budget. The last message is always
// kept.
func (e *Engine) BuildMessages(conv []types.Message, toolNames []string) []llm.Message {
	sysPrompt := e.systemPrompt(toolNames)
	remaining := e.maxTokens - e.reserve - e.countTokens(sysPrompt)

	start := len(conv)
	for i := len(conv) - 1; i >= 0; i-- {
		n := e.countTokens(conv[i].Content)
		if n > remaining && i != len(conv)-1 {
			break
		}
		remaining -= n
		start = i
	}
	if start > 0 {
		slog.Debug("dropped messages over token budget", "dropped", start, "kept", len(conv)-start)
	}

	messages := make([]llm.Message, 0, 1+len(conv)-start)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sysPrompt})
	for _, m := range conv[start:] {
		role, ok := convertRole(m.Role)
		if !ok {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return messages
}

func (e *Engine) systemPrompt(toolNames []string) string {
	data := PromptData{
		Time:     e.now().Format(time.RFC3339),
		Tools:    "none",
		ToolList: toolNames,
	}
	if len(toolNames) > 0 {
		data.Tools = strings.Join(toolNames, ", ")
	}
	var buf bytes.Buffer
	if err := e.prompt.Execute(&buf, data); err != nil {
		slog.Warn("render system prompt", "error", err)
		return fmt.Sprintf("You are a helpful assistant. Current time: %s.", data.Time)
	}
	return buf.String()
}

func convertRole(role string) (llm.Role, bool) {
	switch role {
	case types.RoleUser:
		return llm.RoleUser, true
	case types.RoleAssistant:
		return llm.RoleAssistant, true
	default:
		return "", false
	}
}
