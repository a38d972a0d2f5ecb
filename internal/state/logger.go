package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/internal/usage"
)

// Turn statuses recorded in the stats files.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// TurnRequest describes the request that starts a logged turn.
type TurnRequest struct {
	Model        string
	Effort       string
	Input        string
	PriorCount   int
	EnabledTools []string
}

// TurnOutcome describes how a logged turn ended.
type TurnOutcome struct {
	Status   string
	Usage    *usage.Record
	Err      error
	SubTurns int
	Duration time.Duration
}

type turnLog struct {
	n         int
	req       TurnRequest
	start     time.Time
	subTurns  int
	fetchSeq  int
	toolFiles []string
}

type turnSummary struct {
	n         int
	status    string
	usage     *usage.Record
	duration  time.Duration
	toolFiles []string
}

// Logger writes the session log. All methods are safe for concurrent use so
// a signal handler may call Finalize while a turn is still streaming.
type Logger struct {
	mu      sync.Mutex
	id      types.SessionID
	dir     string
	started time.Time
	now     func() time.Time

	turn  int
	cur   *turnLog
	total *usage.Record
	done  []turnSummary
}

// SessionDirName returns the directory name for a session started at t.
func SessionDirName(t time.Time) string {
	ts := t.UTC().Format(time.RFC3339Nano)
	return "logs-" + strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// NewLogger creates the session directory under root.
func NewLogger(root string, now time.Time) (*Logger, error) {
	dir := filepath.Join(root, SessionDirName(now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	l := &Logger{id: types.NewSessionID(), dir: dir, started: now, now: time.Now}
	if err := l.writeStats(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the session directory.
func (l *Logger) Dir() string { return l.dir }

// ID returns the session identifier stamped into every log header.
func (l *Logger) ID() types.SessionID { return l.id }

func (l *Logger) path(n int, name string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%05d-%s.md", n, name))
}

// StartTurn opens a new numbered turn and writes its request file. A turn
// still open from before is closed as interrupted.
func (l *Logger) StartTurn(req TurnRequest) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur != nil {
		if err := l.endTurn(TurnOutcome{Status: StatusInterrupted}); err != nil {
			slog.Error("close previous turn", "turn", l.cur.n, "error", err)
		}
	}

	l.turn++
	l.cur = &turnLog{n: l.turn, req: req, start: l.now()}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Turn %d request\n\n", l.turn)
	fmt.Fprintf(&sb, "- Session: %s\n", l.id)
	fmt.Fprintf(&sb, "- Time: %s\n", l.cur.start.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Model: %s\n", req.Model)
	fmt.Fprintf(&sb, "- Reasoning effort: %s\n", req.Effort)
	fmt.Fprintf(&sb, "- Tools: %s\n", toolList(req.EnabledTools))
	fmt.Fprintf(&sb, "- Prior messages: %d\n\n", req.PriorCount)
	fmt.Fprintf(&sb, "## Input\n\n%s\n", req.Input)

	if err := writeAtomic(l.path(l.turn, "request"), []byte(sb.String())); err != nil {
		return l.turn, fmt.Errorf("write request: %w", err)
	}
	return l.turn, l.writeStats()
}

// WriteReasoning appends to or overwrites the current turn's reasoning file.
func (l *Logger) WriteReasoning(text string, appendMode bool) error {
	return l.writeTurnFile("response-reasoning", text, appendMode)
}

// WriteResponse appends to or overwrites the current turn's response file.
func (l *Logger) WriteResponse(text string, appendMode bool) error {
	return l.writeTurnFile("response", text, appendMode)
}

func (l *Logger) writeTurnFile(name, text string, appendMode bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur == nil {
		return errors.New("no turn in progress")
	}
	path := l.path(l.cur.n, name)
	if appendMode {
		return appendSync(path, []byte(text))
	}
	return writeAtomic(path, []byte(text))
}

// WriteToolCall records one tool execution. Fetched URLs get one file each,
// other tools a single file.
func (l *Logger) WriteToolCall(name string, args json.RawMessage, result string, urls []types.URLFetchResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur == nil {
		return errors.New("no turn in progress")
	}

	if len(urls) > 0 {
		var errs []error
		for _, r := range urls {
			l.cur.fetchSeq++
			file := fmt.Sprintf("tool-fetch_url-%d", l.cur.fetchSeq)
			var sb strings.Builder
			fmt.Fprintf(&sb, "# fetch_url %s\n\n", r.URL)
			fmt.Fprintf(&sb, "- Latency: %d ms\n", r.Metrics.LatencyMs)
			fmt.Fprintf(&sb, "- Size: %s (%s bytes)\n\n", r.Metrics.SizeFormatted, humanize.Comma(int64(r.Metrics.SizeBytes)))
			sb.WriteString(r.Content)
			sb.WriteString("\n")
			if err := writeAtomic(l.path(l.cur.n, file), []byte(sb.String())); err != nil {
				errs = append(errs, err)
				continue
			}
			l.cur.toolFiles = append(l.cur.toolFiles, file)
		}
		return errors.Join(errs...)
	}

	file := l.cur.toolFile("tool-" + name)
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Tool %s\n\n## Arguments\n\n```json\n%s\n```\n\n## Result\n\n%s\n", name, prettyJSON(args), result)
	if err := writeAtomic(l.path(l.cur.n, file), []byte(sb.String())); err != nil {
		return err
	}
	l.cur.toolFiles = append(l.cur.toolFiles, file)
	return nil
}

// WriteToolError records a tool call that failed or was rejected before it
// could produce a result.
func (l *Logger) WriteToolError(name, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur == nil {
		return errors.New("no turn in progress")
	}
	file := l.cur.toolFile("tool-" + name + "-error")
	text := fmt.Sprintf("# Tool %s failed\n\n%s\n", name, message)
	if err := writeAtomic(l.path(l.cur.n, file), []byte(text)); err != nil {
		return err
	}
	l.cur.toolFiles = append(l.cur.toolFiles, file)
	return nil
}

// toolFile returns base, suffixed with -2, -3, ... if the turn already has it.
func (t *turnLog) toolFile(base string) string {
	file := base
	for i := 2; slices.Contains(t.toolFiles, file); i++ {
		file = fmt.Sprintf("%s-%d", base, i)
	}
	return file
}

// EndTurn writes the turn's stats file and folds its usage into the session
// totals.
func (l *Logger) EndTurn(out TurnOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endTurn(out)
}

func (l *Logger) endTurn(out TurnOutcome) error {
	cur := l.cur
	if cur == nil {
		return errors.New("no turn in progress")
	}
	l.cur = nil

	if out.Status == "" {
		out.Status = StatusCompleted
	}
	if out.Duration == 0 {
		out.Duration = l.now().Sub(cur.start)
	}
	if out.SubTurns == 0 {
		out.SubTurns = cur.subTurns
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Turn %d stats\n\n", cur.n)
	fmt.Fprintf(&sb, "- Session: %s\n", l.id)
	fmt.Fprintf(&sb, "- Status: %s\n", out.Status)
	fmt.Fprintf(&sb, "- Model: %s\n", cur.req.Model)
	fmt.Fprintf(&sb, "- Duration: %s\n", out.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "- Sub-turns: %d\n", out.SubTurns)
	writeUsage(&sb, out.Usage)
	if out.Err != nil {
		fmt.Fprintf(&sb, "\n## Error\n\n%v\n", out.Err)
	}

	l.total = l.total.Add(out.Usage)
	l.done = append(l.done, turnSummary{
		n:         cur.n,
		status:    out.Status,
		usage:     out.Usage,
		duration:  out.Duration,
		toolFiles: cur.toolFiles,
	})

	err := writeAtomic(l.path(cur.n, "stats"), []byte(sb.String()))
	return errors.Join(err, l.writeStats())
}

// writeStats rewrites the cumulative stats.md.
func (l *Logger) writeStats() error {
	var sb strings.Builder
	sb.WriteString("# Session statistics\n\n")
	fmt.Fprintf(&sb, "- Session: %s\n", l.id)
	fmt.Fprintf(&sb, "- Started: %s\n", l.started.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Turns: %d\n", l.turn)

	var failed int
	for _, t := range l.done {
		if t.status != StatusCompleted {
			failed++
		}
	}
	fmt.Fprintf(&sb, "- Completed: %d\n", len(l.done)-failed)
	fmt.Fprintf(&sb, "- Failed or interrupted: %d\n", failed)
	writeUsage(&sb, l.total)

	if len(l.done) > 0 {
		sb.WriteString("\n| Turn | Status | Tokens | Cost | Duration |\n|---|---|---|---|---|\n")
		for _, t := range l.done {
			tokens := "n/a"
			if t.usage != nil {
				tokens = humanize.Comma(int64(t.usage.TotalTokens))
			}
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
				t.n, t.status, tokens, t.usage.FormatCost(), t.duration.Round(time.Millisecond))
		}
	}

	if err := writeAtomic(filepath.Join(l.dir, "stats.md"), []byte(sb.String())); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

func writeUsage(sb *strings.Builder, u *usage.Record) {
	if u == nil {
		sb.WriteString("- Usage: not reported\n")
		return
	}
	fmt.Fprintf(sb, "- Prompt tokens: %s (cached %s)\n", humanize.Comma(int64(u.PromptTokens)), humanize.Comma(int64(u.CachedTokens)))
	fmt.Fprintf(sb, "- Completion tokens: %s (reasoning %s)\n", humanize.Comma(int64(u.CompletionTokens)), humanize.Comma(int64(u.ThinkingTokens)))
	fmt.Fprintf(sb, "- Total tokens: %s\n", humanize.Comma(int64(u.TotalTokens)))
	fmt.Fprintf(sb, "- Cost: %s\n", u.FormatCost())
}

// Observe records a stream event against the current turn. Write failures are
// logged, never returned.
func (l *Logger) Observe(ev types.StreamEvent) {
	var err error
	switch ev.Kind {
	case types.EventCreated:
		l.mu.Lock()
		if l.cur != nil {
			l.cur.subTurns++
		}
		l.mu.Unlock()
	case types.EventThinkingDelta:
		if ev.Text != "" {
			err = l.WriteReasoning(ev.Text, true)
		}
	case types.EventOutputDelta:
		if s := ev.Text + ev.Content; s != "" {
			err = l.WriteResponse(s, true)
		}
	case types.EventToolUse:
		if t := ev.Tool; t != nil && t.Status == types.ToolError {
			err = l.WriteToolError(t.Name, t.Content)
		}
	case types.EventToolContinuation:
		if c := ev.Continuation; c != nil {
			err = l.WriteToolCall(c.ToolName, c.Arguments, c.ToolResult, c.URLResults)
		}
	case types.EventComplete:
		if ev.Content != "" {
			err = l.WriteResponse(ev.Content, false)
		}
		err = errors.Join(err, l.EndTurn(TurnOutcome{Status: StatusCompleted, Usage: ev.Usage}))
	case types.EventError:
		cause := ev.Cause
		if cause == nil || ev.Message != cause.Error() {
			cause = errors.New(ev.Message)
		}
		err = l.EndTurn(TurnOutcome{Status: StatusFailed, Usage: ev.Usage, Err: cause})
	}
	if err != nil {
		slog.Error("session log write failed", "dir", l.dir, "event", string(ev.Kind), "error", err)
	}
}

// Finalize closes any open turn as interrupted and writes session.md.
func (l *Logger) Finalize() error {
	return l.finalize(nil)
}

// Fatal writes session.md with a closing section describing err.
func (l *Logger) Fatal(err error) error {
	return l.finalize(err)
}

func (l *Logger) finalize(fatal error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur != nil {
		if err := l.endTurn(TurnOutcome{Status: StatusInterrupted, Err: fatal}); err != nil {
			slog.Error("close open turn", "error", err)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session %s\n\n", filepath.Base(l.dir))
	fmt.Fprintf(&sb, "- Session: %s\n", l.id)
	fmt.Fprintf(&sb, "- Started: %s\n", l.started.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Ended: %s\n", l.now().Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Turns: %d\n", l.turn)

	for _, t := range l.done {
		fmt.Fprintf(&sb, "\n---\n\n## Turn %d (%s)\n", t.n, t.status)
		files := []string{"request", "response-reasoning"}
		files = append(files, t.toolFiles...)
		files = append(files, "response", "stats")
		for _, name := range files {
			data, err := os.ReadFile(l.path(t.n, name))
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					slog.Error("read turn file", "turn", t.n, "file", name, "error", err)
				}
				continue
			}
			fmt.Fprintf(&sb, "\n### %s\n\n%s\n", name, strings.TrimRight(string(data), "\n"))
		}
	}

	if stats, err := os.ReadFile(filepath.Join(l.dir, "stats.md")); err == nil {
		fmt.Fprintf(&sb, "\n---\n\n%s", stats)
	}
	if fatal != nil {
		fmt.Fprintf(&sb, "\n---\n\n## Fatal error\n\n%v\n", fatal)
	}

	if err := writeAtomic(filepath.Join(l.dir, "session.md"), []byte(sb.String())); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	return nil
}

func toolList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func prettyJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
