// Package classify adapts the upstream protocol-frame vocabulary to the closed
// set of semantic stream events. Upstream event names never leave this package.
package classify

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/internal/usage"
	"github.com/user/thinkstream/pkg/llm"
)

// WebSearchTool is the name reported for hosted web search activity.
const WebSearchTool = "web_search"

// Classifier converts the frames of one sub-turn into stream events. It keeps
// per-item state, so a new Classifier is needed for every upstream stream.
type Classifier struct {
	model   string
	calls   map[int64]*callState
	itemIdx map[string]int64
	sawText bool
}

type callState struct {
	id   string
	name string
	args strings.Builder
	done bool
}

// New creates a Classifier for a sub-turn against model. The model is used to
// price the usage reported on completion.
func New(model string) *Classifier {
	return &Classifier{
		model:   model,
		calls:   make(map[int64]*callState),
		itemIdx: make(map[string]int64),
	}
}

// Classify maps one frame to zero or more events. Unknown frame kinds are
// dropped.
func (c *Classifier) Classify(f llm.Frame) []types.StreamEvent {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
		return nil
	}
	if !gjson.ValidBytes(data) {
		return c.malformed(f.Type, data)
	}

	doc := gjson.ParseBytes(data)
	kind := f.Type
	if kind == "" {
		kind = doc.Get("type").String()
	}

	switch kind {
	case "response.created":
		return one(types.StreamEvent{Kind: types.EventCreated})

	case "response.in_progress":
		return one(types.StreamEvent{Kind: types.EventInProgress})

	case "response.output_item.added":
		return c.itemAdded(doc)

	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		if d := doc.Get("delta").String(); d != "" {
			return one(types.StreamEvent{Kind: types.EventThinkingDelta, Text: d})
		}
		return nil

	case "response.reasoning_summary_part.done":
		return one(types.StreamEvent{Kind: types.EventThinkingDelta, Text: "\n\n"})

	case "response.output_text.delta", "response.refusal.delta":
		if d := doc.Get("delta").String(); d != "" {
			c.sawText = true
			return one(types.StreamEvent{Kind: types.EventOutputDelta, Text: d})
		}
		return nil

	case "response.function_call_arguments.delta":
		return c.argsDelta(doc)

	case "response.function_call_arguments.done":
		return c.argsDone(doc.Get("output_index").Int(), doc.Get("item_id").String(), "", doc.Get("name").String(), doc.Get("arguments").String())

	case "response.output_item.done":
		return c.itemDone(doc)

	case "response.web_search_call.completed":
		return one(toolUse(WebSearchTool, types.ToolCompleted))

	case "response.completed", "response.incomplete":
		if kind == "response.incomplete" {
			slog.Warn("response incomplete", "reason", doc.Get("response.incomplete_details.reason").String())
		}
		return one(types.StreamEvent{
			Kind:  types.EventComplete,
			Usage: usage.Calculate(c.model, counts(doc.Get("response.usage"))),
		})

	case "response.failed":
		msg := doc.Get("response.error.message").String()
		if msg == "" {
			msg = "response failed"
		}
		return one(types.StreamEvent{Kind: types.EventError, Message: msg})

	case "error":
		msg := doc.Get("message").String()
		if msg == "" {
			msg = doc.Get("error.message").String()
		}
		if msg == "" {
			msg = "upstream error"
		}
		return one(types.StreamEvent{Kind: types.EventError, Message: msg})
	}
	return nil
}

func (c *Classifier) itemAdded(doc gjson.Result) []types.StreamEvent {
	item := doc.Get("item")
	switch item.Get("type").String() {
	case "reasoning":
		return one(types.StreamEvent{Kind: types.EventThinkingDelta, Text: ""})
	case "function_call":
		idx := doc.Get("output_index").Int()
		call := c.call(idx, item.Get("id").String())
		call.id = item.Get("call_id").String()
		call.name = item.Get("name").String()
		return one(toolUse(call.name, types.ToolProcessing))
	case "web_search_call":
		return one(toolUse(WebSearchTool, types.ToolExecuting))
	}
	return nil
}

func (c *Classifier) itemDone(doc gjson.Result) []types.StreamEvent {
	item := doc.Get("item")
	switch item.Get("type").String() {
	case "function_call":
		return c.argsDone(doc.Get("output_index").Int(), item.Get("id").String(), item.Get("call_id").String(), item.Get("name").String(), item.Get("arguments").String())
	case "message":
		// Text normally arrives as deltas; some servers only send the
		// finished item.
		if c.sawText {
			return nil
		}
		var sb strings.Builder
		for _, part := range item.Get("content").Array() {
			switch part.Get("type").String() {
			case "output_text":
				sb.WriteString(part.Get("text").String())
			case "refusal":
				sb.WriteString(part.Get("refusal").String())
			}
		}
		if sb.Len() == 0 {
			return nil
		}
		c.sawText = true
		return one(types.StreamEvent{Kind: types.EventOutputDelta, Content: sb.String()})
	}
	return nil
}

func (c *Classifier) argsDelta(doc gjson.Result) []types.StreamEvent {
	call := c.call(c.index(doc), doc.Get("item_id").String())
	d := doc.Get("delta").String()
	if call.done || d == "" {
		return nil
	}
	call.args.WriteString(d)
	ev := toolUse(call.name, types.ToolProcessing)
	ev.Tool.DeltaArgs = d
	return one(ev)
}

func (c *Classifier) argsDone(idx int64, itemID, callID, name, args string) []types.StreamEvent {
	if itemID != "" {
		if known, ok := c.itemIdx[itemID]; ok {
			idx = known
		}
	}
	call := c.call(idx, itemID)
	if call.done {
		return nil
	}
	call.done = true
	if callID != "" {
		call.id = callID
	}
	if name != "" && call.name == "" {
		call.name = name
	}
	if args != "" {
		call.args.Reset()
		call.args.WriteString(args)
	}
	id := types.CallID(call.id)
	if id == "" {
		id = types.NewCallID()
	}
	ev := toolUse(call.name, types.ToolProcessing)
	ev.Tool.Call = &types.ToolCall{
		ID:        id,
		Name:      call.name,
		Arguments: []byte(call.args.String()),
	}
	return one(ev)
}

func (c *Classifier) malformed(kind string, data []byte) []types.StreamEvent {
	snippet := string(data)
	if len(snippet) > 80 {
		snippet = snippet[:80] + "..."
	}
	if strings.HasPrefix(kind, "response.function_call_arguments") {
		ev := toolUse("", types.ToolError)
		ev.Tool.Content = fmt.Sprintf("malformed tool call frame: %s", snippet)
		return one(ev)
	}
	return one(types.StreamEvent{
		Kind:    types.EventError,
		Message: fmt.Sprintf("malformed %s frame", frameName(kind)),
		Cause:   fmt.Errorf("invalid JSON payload: %s", snippet),
	})
}

// index resolves the output index of a frame, preferring the item id mapping.
func (c *Classifier) index(doc gjson.Result) int64 {
	if id := doc.Get("item_id").String(); id != "" {
		if idx, ok := c.itemIdx[id]; ok {
			return idx
		}
	}
	return doc.Get("output_index").Int()
}

func (c *Classifier) call(idx int64, itemID string) *callState {
	if itemID != "" {
		if _, ok := c.itemIdx[itemID]; !ok {
			c.itemIdx[itemID] = idx
		}
	}
	call, ok := c.calls[idx]
	if !ok {
		call = &callState{}
		c.calls[idx] = call
	}
	return call
}

func counts(u gjson.Result) *usage.Counts {
	if !u.Exists() || u.Type == gjson.Null {
		return nil
	}
	return &usage.Counts{
		InputTokens:     int(u.Get("input_tokens").Int()),
		OutputTokens:    int(u.Get("output_tokens").Int()),
		TotalTokens:     int(u.Get("total_tokens").Int()),
		CachedTokens:    int(u.Get("input_tokens_details.cached_tokens").Int()),
		ReasoningTokens: int(u.Get("output_tokens_details.reasoning_tokens").Int()),
	}
}

func toolUse(name string, status types.ToolStatus) types.StreamEvent {
	return types.StreamEvent{Kind: types.EventToolUse, Tool: &types.ToolUse{Name: name, Status: status}}
}

func frameName(kind string) string {
	if kind == "" {
		return "untyped"
	}
	return kind
}

func one(ev types.StreamEvent) []types.StreamEvent {
	return []types.StreamEvent{ev}
}
