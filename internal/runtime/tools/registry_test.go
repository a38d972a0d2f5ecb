package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string {
	if e.name != "" {
		return e.name
	}
	return "echo"
}
func (e *echoTool) Description() string { return "Echoes input" }
func (e *echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}
func (e *echoTool) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var p struct {
		Text string `json:"text"`
	}
	json.Unmarshal(args, &p)
	return &Result{Text: p.Text}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected to find echo tool")
	}
	if tool.Name() != "echo" {
		t.Errorf("expected name 'echo', got %q", tool.Name())
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected not to find missing tool")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "zeta"})
	r.Register(&echoTool{name: "alpha"})
	r.Register(&echoTool{name: "mid"})

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], names[i])
		}
	}
}

func TestRegistryDeclarations(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})
	r.Register(&echoTool{name: "other"})

	decls := r.Declarations([]string{"other", "missing", "echo"})
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	if decls[0].Name != "other" || decls[1].Name != "echo" {
		t.Errorf("unexpected order: %q, %q", decls[0].Name, decls[1].Name)
	}
	if decls[0].Kind != "function" {
		t.Errorf("expected function kind, got %q", decls[0].Kind)
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	if err := r.Validate("echo", json.RawMessage(`{"text":"hi"}`)); err != nil {
		t.Fatalf("expected valid args, got %v", err)
	}

	err := r.Validate("echo", json.RawMessage(`{"text":`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments for bad JSON, got %v", err)
	}

	err = r.Validate("echo", json.RawMessage(`{"text":42}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments for wrong type, got %v", err)
	}

	err = r.Validate("echo", nil)
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments for missing required field, got %v", err)
	}

	err = r.Validate("nope", json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestBuiltinSchemasCompile(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFetchURLs(FetchOptions{}))
	r.Register(NewRunCode(&fakeSandbox{}))

	if err := r.Validate("fetch_urls", json.RawMessage(`{"urls":["a.com"]}`)); err != nil {
		t.Errorf("fetch_urls: %v", err)
	}
	if err := r.Validate("fetch_urls", json.RawMessage(`{"urls":"a.com"}`)); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("fetch_urls: expected invalid arguments, got %v", err)
	}
	if err := r.Validate("run_code", json.RawMessage(`{"code":"print(1)"}`)); err != nil {
		t.Errorf("run_code: %v", err)
	}
}
