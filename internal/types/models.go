package types

import (
	"encoding/json"
	"time"

	"github.com/user/thinkstream/internal/usage"
)

// Message is one entry of the caller-owned conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EventKind tags a StreamEvent.
type EventKind string

const (
	EventCreated          EventKind = "created"
	EventInProgress       EventKind = "in_progress"
	EventThinkingDelta    EventKind = "thinking_delta"
	EventOutputDelta      EventKind = "output_delta"
	EventToolUse          EventKind = "tool_use"
	EventToolContinuation EventKind = "tool_continuation"
	EventError            EventKind = "error"
	EventComplete         EventKind = "complete"
)

// ToolStatus is the lifecycle state reported by a tool_use event.
type ToolStatus string

const (
	ToolProcessing ToolStatus = "processing"
	ToolExecuting  ToolStatus = "executing"
	ToolCompleted  ToolStatus = "completed"
	ToolError      ToolStatus = "error"
)

// StreamEvent is the semantic event emitted to callers. Only the fields
// relevant to Kind are set.
type StreamEvent struct {
	Kind EventKind

	// Text is the delta for thinking_delta and output_delta.
	Text string
	// Content is a full text block: a non-delta output_delta, or the final
	// answer on complete.
	Content string

	Tool         *ToolUse
	Continuation *ToolContinuation

	// Message and Cause describe an error event.
	Message string
	Cause   error

	Usage *usage.Record
}

// ToolUse describes progress of one tool invocation.
type ToolUse struct {
	Name       string
	Status     ToolStatus
	Content    string
	DeltaArgs  string
	URLMetrics []URLMetric
	// Call is set once the upstream finished emitting the call's arguments.
	Call *ToolCall
}

// ToolContinuation signals that a tool result was folded back into the
// conversation and a new upstream stream is about to open.
type ToolContinuation struct {
	ToolName      string
	ToolResult    string
	Arguments     json.RawMessage
	RequestedURLs []string
	URLResults    []URLFetchResult
	Usage         *usage.Record
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        CallID
	Name      string
	Arguments json.RawMessage
}

// URLFetchResult is the outcome of fetching one URL.
type URLFetchResult struct {
	URL     string     `json:"url"`
	Content string     `json:"content"`
	Metrics URLMetrics `json:"metrics"`
}

// URLMetrics are the timing and size measurements of one fetch.
type URLMetrics struct {
	LatencyMs     int64  `json:"latency_ms"`
	SizeBytes     int    `json:"size_bytes"`
	SizeFormatted string `json:"size_formatted"`
}

// URLMetric pairs a URL with its metrics for tool_use events.
type URLMetric struct {
	URL string
	URLMetrics
}

// Metrics flattens fetch results into per-URL metrics.
func Metrics(results []URLFetchResult) []URLMetric {
	if len(results) == 0 {
		return nil
	}
	out := make([]URLMetric, len(results))
	for i, r := range results {
		out[i] = URLMetric{URL: r.URL, URLMetrics: r.Metrics}
	}
	return out
}

// Terminal reports whether the event ends a turn's outer stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}
