// Package runtime drives a turn: it opens upstream streams, classifies their
// frames, runs requested tools and continues the stream with their results.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/user/thinkstream/internal/classify"
	ctxengine "github.com/user/thinkstream/internal/context"
	"github.com/user/thinkstream/internal/runtime/tools"
	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
)

// DefaultMaxContinuations is the continuation cap used by the CLI.
const DefaultMaxContinuations = 8

// ErrContinuationLimit is reported when a turn requests more tool
// continuations than allowed.
var ErrContinuationLimit = errors.New("continuation limit reached")

// Options tunes an Orchestrator.
type Options struct {
	// MaxContinuations caps tool continuations per turn. Zero means no cap.
	MaxContinuations int
	MaxOutputTokens  int
}

// Orchestrator implements the streaming turn loop.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	engine   *ctxengine.Engine
	opts     Options
}

// New creates an Orchestrator with the given dependencies.
func New(provider llm.Provider, registry *tools.Registry, engine *ctxengine.Engine, opts Options) *Orchestrator {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Orchestrator{
		provider: provider,
		registry: registry,
		engine:   engine,
		opts:     opts,
	}
}

// TurnRequest starts a turn from a new user input.
type TurnRequest struct {
	Model        string
	Effort       llm.Effort
	Input        string
	Prior        []types.Message
	EnabledTools []string
}

// ContinueRequest resumes a turn from an already assembled conversation.
type ContinueRequest struct {
	Model        string
	Effort       llm.Effort
	Conversation []types.Message
	EnabledTools []string
}

// StreamTurn appends input to the prior conversation and streams the turn.
// The returned channel yields events in order and is closed after exactly one
// terminal Complete or Error event. Callers must drain it.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) <-chan types.StreamEvent {
	conv := make([]types.Message, 0, len(req.Prior)+1)
	conv = append(conv, req.Prior...)
	conv = append(conv, types.Message{Role: types.RoleUser, Content: req.Input, Timestamp: time.Now()})
	return o.ContinueTurn(ctx, ContinueRequest{
		Model:        req.Model,
		Effort:       req.Effort,
		Conversation: conv,
		EnabledTools: req.EnabledTools,
	})
}

// ContinueTurn streams a turn over conv without adding a new user message.
func (o *Orchestrator) ContinueTurn(ctx context.Context, req ContinueRequest) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 16)
	conv := append([]types.Message(nil), req.Conversation...)
	go func() {
		defer close(out)
		o.run(ctx, req, conv, out)
	}()
	return out
}

// turn carries the mutable parts of one running turn.
type turn struct {
	req   ContinueRequest
	conv  []types.Message
	state turnState
	out   chan<- types.StreamEvent
}

// emit folds ev into the turn state and forwards what apply returns.
func (t *turn) emit(ev types.StreamEvent) {
	var outs []types.StreamEvent
	t.state, outs = apply(t.state, ev)
	for _, e := range outs {
		t.out <- e
	}
}

// fail ends the turn with an Error carrying the usage of every sub-turn that
// completed before the failure.
func (t *turn) fail(msg string, cause error) {
	t.emit(types.StreamEvent{Kind: types.EventError, Message: msg, Cause: cause, Usage: t.state.usage})
}

func (o *Orchestrator) run(ctx context.Context, req ContinueRequest, conv []types.Message, out chan<- types.StreamEvent) {
	effort := req.Effort
	if effort == "" {
		effort = llm.EffortMedium
	}
	req.Effort = effort

	t := &turn{req: req, conv: conv, out: out}
	enabled := EnabledTools(o.registry, req.EnabledTools, req.Model, effort)
	decls := declarations(o.registry, enabled)
	start := time.Now()

	for continuations := 0; ; {
		o.subTurn(ctx, t, enabled, decls)
		if t.state.done() {
			slog.Info("turn finished",
				"phase", t.state.phase.String(),
				"sub_turns", t.state.subTurns,
				"duration", time.Since(start).Round(time.Millisecond))
			return
		}
		if t.state.pending == nil {
			t.fail("upstream stream ended before completion", nil)
			return
		}

		var call *types.ToolCall
		t.state, call = t.state.takePending()
		if limit := o.opts.MaxContinuations; limit > 0 && continuations >= limit {
			slog.Warn("continuation limit reached", "tool", call.Name, "limit", limit)
			t.emit(toolUse(call.Name, types.ToolError, fmt.Sprintf("%v (%d)", ErrContinuationLimit, limit)))
			t.emit(types.StreamEvent{Kind: types.EventComplete})
			return
		}
		if continuations >= DefaultMaxContinuations {
			slog.Warn("turn exceeds default continuation depth", "continuations", continuations+1)
		}

		if !o.runTool(ctx, t, call, enabled) {
			return
		}
		continuations++
	}
}

// subTurn opens one upstream stream and folds its events into t.
func (o *Orchestrator) subTurn(ctx context.Context, t *turn, enabled []string, decls []llm.ToolDecl) {
	if ctx.Err() != nil {
		t.fail("turn cancelled", ctx.Err())
		return
	}
	messages := t.conv
	var built []llm.Message
	if o.engine != nil {
		built = o.engine.BuildMessages(messages, enabled)
	} else {
		built = make([]llm.Message, 0, len(messages))
		for _, m := range messages {
			built = append(built, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
		}
	}

	stream, err := o.provider.Stream(ctx, llm.Request{
		Model:           t.req.Model,
		Effort:          t.req.Effort,
		Messages:        built,
		Tools:           decls,
		MaxOutputTokens: o.opts.MaxOutputTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			t.fail("turn cancelled", ctx.Err())
			return
		}
		t.fail(fmt.Sprintf("open stream: %v", err), err)
		return
	}
	defer stream.Close()

	cls := classify.New(t.req.Model)
	for ctx.Err() == nil && stream.Next() {
		for _, ev := range cls.Classify(stream.Frame()) {
			t.emit(ev)
			if t.state.done() {
				return
			}
		}
	}
	if ctx.Err() != nil {
		t.fail("turn cancelled", ctx.Err())
		return
	}
	if err := stream.Err(); err != nil {
		t.fail(fmt.Sprintf("read stream: %v", err), err)
	}
}

// runTool validates and executes call, then extends the conversation with its
// result. It returns false when the turn has ended.
func (o *Orchestrator) runTool(ctx context.Context, t *turn, call *types.ToolCall, enabled []string) bool {
	name := call.Name
	err := o.registry.Validate(name, call.Arguments)
	if err == nil && !slices.Contains(enabled, name) {
		err = fmt.Errorf("%w: %q is not enabled", tools.ErrUnknownTool, name)
	}
	if err != nil {
		slog.Warn("rejecting tool call", "tool", name, "error", err)
		t.emit(toolUse(name, types.ToolError, err.Error()))
		t.emit(types.StreamEvent{Kind: types.EventComplete})
		return false
	}
	tool, _ := o.registry.Get(name)

	t.emit(toolUse(name, types.ToolExecuting, ""))
	start := time.Now()
	res, execErr := tool.Execute(ctx, call.Arguments)
	if ctx.Err() != nil {
		t.fail("turn cancelled", ctx.Err())
		return false
	}

	var resultText string
	var urlResults []types.URLFetchResult
	if execErr != nil {
		slog.Warn("tool failed", "tool", name, "error", execErr, "duration", time.Since(start))
		resultText = "Error: " + execErr.Error()
		t.emit(toolUse(name, types.ToolError, execErr.Error()))
	} else {
		slog.Info("tool completed", "tool", name, "duration", time.Since(start))
		resultText = res.Text
		urlResults = res.URLResults
		ev := toolUse(name, types.ToolCompleted, res.Text)
		ev.Tool.URLMetrics = types.Metrics(res.URLResults)
		t.emit(ev)
	}

	t.conv = append(t.conv,
		types.Message{Role: types.RoleAssistant, Content: fmt.Sprintf("I will use the %s tool to help answer this.", name), Timestamp: time.Now()},
		types.Message{Role: types.RoleUser, Content: continuationPrompt(name, resultText), Timestamp: time.Now()},
	)
	t.emit(types.StreamEvent{
		Kind: types.EventToolContinuation,
		Continuation: &types.ToolContinuation{
			ToolName:      name,
			ToolResult:    resultText,
			Arguments:     call.Arguments,
			RequestedURLs: requestedURLs(call.Arguments),
			URLResults:    urlResults,
			Usage:         t.state.usage,
		},
	})
	return true
}

func continuationPrompt(tool, result string) string {
	return fmt.Sprintf("Tool %s returned:\n\n%s\n\nPlease continue answering the original request using this result.", tool, result)
}

func requestedURLs(args json.RawMessage) []string {
	var p struct {
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil
	}
	return p.URLs
}

func toolUse(name string, status types.ToolStatus, content string) types.StreamEvent {
	return types.StreamEvent{
		Kind: types.EventToolUse,
		Tool: &types.ToolUse{Name: name, Status: status, Content: content},
	}
}
