package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the author of a message sent upstream.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the outbound message list.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Effort is the reasoning effort requested from the model.
type Effort string

const (
	EffortMinimal Effort = "minimal"
	EffortLow     Effort = "low"
	EffortMedium  Effort = "medium"
	EffortHigh    Effort = "high"
)

// ParseEffort validates a reasoning effort string.
func ParseEffort(s string) (Effort, error) {
	switch e := Effort(s); e {
	case EffortMinimal, EffortLow, EffortMedium, EffortHigh:
		return e, nil
	case "":
		return EffortMedium, nil
	default:
		return "", fmt.Errorf("invalid reasoning effort %q (want minimal, low, medium or high)", s)
	}
}

// ToolKind distinguishes locally executed function tools from tools the
// upstream service runs itself.
type ToolKind string

const (
	ToolFunction ToolKind = "function"
	ToolHosted   ToolKind = "hosted"
)

// ToolDecl declares a tool the model may call.
type ToolDecl struct {
	Kind        ToolKind        `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is one upstream streaming call (one sub-turn).
type Request struct {
	Model           string
	Effort          Effort
	Messages        []Message
	Tools           []ToolDecl
	MaxOutputTokens int
}

// Frame is one raw protocol frame read from the upstream stream. Type is the
// upstream event name, Data its undecoded payload.
type Frame struct {
	Type string
	Data []byte
}

// StatusError is returned when the upstream endpoint answers with a non-success
// HTTP status before any frame is streamed.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

// ErrStatus matches any *StatusError via errors.Is.
var ErrStatus = errors.New("upstream status error")

func (e *StatusError) Is(target error) bool { return target == ErrStatus }
