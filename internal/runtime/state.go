package runtime

import (
	"log/slog"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/internal/usage"
)

type phase int

const (
	phaseIdle phase = iota
	phaseCreated
	phaseInProgress
	phaseThinking
	phaseResponding
	phaseToolPending
	phaseToolExecuting
	phaseComplete
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseCreated:
		return "created"
	case phaseInProgress:
		return "in_progress"
	case phaseThinking:
		return "thinking"
	case phaseResponding:
		return "responding"
	case phaseToolPending:
		return "tool_pending"
	case phaseToolExecuting:
		return "tool_executing"
	case phaseComplete:
		return "complete"
	case phaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// turnState is the per-turn accumulator. It is a value; apply returns an
// updated copy.
type turnState struct {
	phase     phase
	output    string
	reasoning string
	pending   *types.ToolCall
	usage     *usage.Record
	subTurns  int
}

func (s turnState) done() bool {
	return s.phase == phaseComplete || s.phase == phaseFailed
}

// apply folds one event into the turn state and returns the events to emit to
// the caller. Sub-turn completions are absorbed; the outer Complete is emitted
// only when no tool call is pending.
func apply(s turnState, ev types.StreamEvent) (turnState, []types.StreamEvent) {
	if s.done() {
		return s, nil
	}

	switch ev.Kind {
	case types.EventCreated:
		s.phase = phaseCreated
		s.subTurns++
	case types.EventInProgress:
		s.phase = phaseInProgress
	case types.EventThinkingDelta:
		s.phase = phaseThinking
		s.reasoning += ev.Text
	case types.EventOutputDelta:
		s.phase = phaseResponding
		s.output += ev.Text + ev.Content

	case types.EventToolUse:
		if ev.Tool == nil {
			return s, nil
		}
		if ev.Tool.Call != nil {
			if s.pending != nil {
				slog.Warn("ignoring additional tool call in sub-turn",
					"tool", ev.Tool.Call.Name, "pending", s.pending.Name)
				return s, nil
			}
			s.pending = ev.Tool.Call
			s.phase = phaseToolPending
		} else if ev.Tool.Status == types.ToolExecuting && s.pending == nil {
			s.phase = phaseToolExecuting
		}

	case types.EventToolContinuation:
		s.phase = phaseIdle

	case types.EventComplete:
		s.usage = s.usage.Add(ev.Usage)
		if s.pending != nil {
			return s, nil
		}
		s.phase = phaseComplete
		return s, []types.StreamEvent{{
			Kind:    types.EventComplete,
			Content: s.output,
			Usage:   s.usage,
		}}

	case types.EventError:
		s.phase = phaseFailed
	}
	return s, []types.StreamEvent{ev}
}

// takePending clears the pending call and returns it.
func (s turnState) takePending() (turnState, *types.ToolCall) {
	call := s.pending
	s.pending = nil
	return s, call
}
