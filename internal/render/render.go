// Package render prints a turn's stream events to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/internal/usage"
)

// Styles holds the lipgloss styles used for each part of the output.
type Styles struct {
	Thinking lipgloss.Style
	Tool     lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
}

// DefaultStyles returns the gruvbox-flavoured default palette.
func DefaultStyles() Styles {
	return Styles{
		Thinking: lipgloss.NewStyle().Foreground(lipgloss.Color("#928374")).Italic(true),
		Tool:     lipgloss.NewStyle().Foreground(lipgloss.Color("#83a598")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("#fb4934")).Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#928374")),
	}
}

// Options configure a Renderer.
type Options struct {
	// Markdown buffers the answer and renders it through glamour on
	// completion. When false, output deltas are written as they arrive.
	Markdown bool
	// Width is the word-wrap width for markdown; 0 means 80.
	Width int
	// HideThinking suppresses reasoning deltas.
	HideThinking bool
	Styles       *Styles
}

// Renderer writes stream events to w. It implements types.EventSink and is
// safe for use from one producer at a time.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	opts   Options
	styles Styles
	md     *glamour.TermRenderer

	thinking bool
	atLine   bool
	answer   strings.Builder
}

var _ types.EventSink = (*Renderer)(nil)

// New creates a Renderer writing to w.
func New(w io.Writer, opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r := &Renderer{w: w, opts: opts, styles: DefaultStyles(), atLine: true}
	if opts.Styles != nil {
		r.styles = *opts.Styles
	}
	if opts.Markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(opts.Width),
		)
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		r.md = md
	}
	return r, nil
}

// Observe renders one event.
func (r *Renderer) Observe(ev types.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case types.EventThinkingDelta:
		if r.opts.HideThinking || ev.Text == "" {
			return
		}
		if !r.thinking {
			r.newline()
			r.thinking = true
		}
		r.write(r.styles.Thinking.Render(ev.Text))

	case types.EventOutputDelta:
		text := ev.Text
		if text == "" {
			text = ev.Content
		}
		if text == "" {
			return
		}
		r.endThinking()
		r.answer.WriteString(text)
		if r.md == nil {
			r.write(text)
		}

	case types.EventToolUse:
		r.tool(ev.Tool)

	case types.EventToolContinuation:
		if ev.Continuation == nil {
			return
		}
		r.endThinking()
		r.line(r.styles.Muted.Render(fmt.Sprintf("↳ %s result folded back (%s)",
			ev.Continuation.ToolName, humanize.Bytes(uint64(len(ev.Continuation.ToolResult))))))

	case types.EventError:
		r.endThinking()
		r.flushAnswer()
		r.line(r.styles.Error.Render("Error: " + ev.Message))

	case types.EventComplete:
		r.endThinking()
		r.flushAnswer()
		r.newline()
		r.line(r.styles.Muted.Render(Summary(ev.Usage)))
	}
}

func (r *Renderer) tool(t *types.ToolUse) {
	if t == nil {
		return
	}
	switch t.Status {
	case types.ToolExecuting:
		r.endThinking()
		r.line(r.styles.Tool.Render(fmt.Sprintf("⚙ %s running", t.Name)))
	case types.ToolCompleted:
		r.endThinking()
		r.line(r.styles.Tool.Render(fmt.Sprintf("✓ %s done", t.Name)))
		for _, m := range t.URLMetrics {
			r.line(r.styles.Muted.Render(fmt.Sprintf("  %s  %s  %dms", m.URL, m.SizeFormatted, m.LatencyMs)))
		}
	case types.ToolError:
		r.endThinking()
		r.line(r.styles.Error.Render(fmt.Sprintf("✗ %s: %s", t.Name, t.Content)))
	}
}

// Answer returns the answer text rendered so far.
func (r *Renderer) Answer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answer.String()
}

// Reset clears per-turn state so the renderer can be reused in a chat loop.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answer.Reset()
	r.thinking = false
}

func (r *Renderer) flushAnswer() {
	if r.md == nil || r.answer.Len() == 0 {
		return
	}
	out, err := r.md.Render(r.answer.String())
	if err != nil {
		out = r.answer.String()
	}
	r.newline()
	r.write(strings.TrimSpace(out))
}

func (r *Renderer) endThinking() {
	if r.thinking {
		r.thinking = false
		r.write("\n")
	}
}

func (r *Renderer) newline() {
	if !r.atLine {
		r.write("\n")
	}
}

func (r *Renderer) line(s string) {
	r.newline()
	r.write(s + "\n")
}

func (r *Renderer) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(r.w, s)
	r.atLine = strings.HasSuffix(s, "\n")
}

// Summary formats a usage record as a one-line footer.
func Summary(u *usage.Record) string {
	if u == nil {
		return "tokens: n/a"
	}
	return fmt.Sprintf("tokens: %s in (%s cached) · %s out (%s thinking) · cost %s",
		humanize.Comma(int64(u.PromptTokens)),
		humanize.Comma(int64(u.CachedTokens)),
		humanize.Comma(int64(u.CompletionTokens)),
		humanize.Comma(int64(u.ThinkingTokens)),
		u.FormatCost())
}
