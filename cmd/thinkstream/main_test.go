package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/user/thinkstream/internal/types"
)

func TestAskInput_Args(t *testing.T) {
	askFile = ""
	got, err := askInput([]string{"what", "is", "2+2?"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "what is 2+2?" {
		t.Errorf("unexpected input %q", got)
	}

	if _, err := askInput(nil); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestAskInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("summarize this\n"), 0644); err != nil {
		t.Fatal(err)
	}
	askFile = path
	defer func() { askFile = "" }()

	got, err := askInput(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "summarize this" {
		t.Errorf("unexpected input %q", got)
	}

	got, err = askInput([]string{"Please"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Please\n\nsummarize this" {
		t.Errorf("unexpected combined input %q", got)
	}
}

func TestTurnError(t *testing.T) {
	if err := turnError(types.StreamEvent{Kind: types.EventComplete}); err != nil {
		t.Errorf("expected nil for complete, got %v", err)
	}

	cause := errors.New("connection reset")
	err := turnError(types.StreamEvent{Kind: types.EventError, Message: "upstream failed", Cause: cause})
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream failed") {
		t.Errorf("expected message in error, got %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" fetch_urls, ,run_code ")
	if !slices.Equal(got, []string{"fetch_urls", "run_code"}) {
		t.Errorf("unexpected list %v", got)
	}
}

func TestListSessions(t *testing.T) {
	root := t.TempDir()
	if got, err := listSessions(filepath.Join(root, "missing")); err != nil || got != nil {
		t.Fatalf("expected nil for missing dir, got %v %v", got, err)
	}

	a := filepath.Join(root, "logs-2026-01-02T10-00-00Z")
	b := filepath.Join(root, "logs-2026-01-01T10-00-00Z")
	for _, d := range []string{a, b, filepath.Join(root, "other")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"00001-request.md", "00002-request.md", "session.md"} {
		if err := os.WriteFile(filepath.Join(a, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := listSessions(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].name != filepath.Base(b) || got[1].name != filepath.Base(a) {
		t.Errorf("expected oldest first, got %v", got)
	}
	if got[1].turns != 2 || !got[1].finalized {
		t.Errorf("unexpected info for %s: %+v", got[1].name, got[1])
	}
	if got[0].turns != 0 || got[0].finalized {
		t.Errorf("unexpected info for %s: %+v", got[0].name, got[0])
	}
}
