package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
)

var (
	// ErrInvalidArguments is returned when tool arguments are not valid JSON or
	// do not satisfy the tool's parameter schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUnknownTool is returned for a call naming a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Result is the outcome of one tool execution. Text is folded back into the
// conversation; URLResults is set by tools that fetch remote content.
type Result struct {
	Text       string
	URLResults []types.URLFetchResult
}

type entry struct {
	tool      Tool
	schema    *jsonschema.Schema
	schemaErr error
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]*entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds a tool to the registry and compiles its parameter schema.
func (r *Registry) Register(t Tool) {
	e := &entry{tool: t}
	e.schema, e.schemaErr = jsonschema.CompileString(t.Name()+".schema.json", string(t.Parameters()))
	r.tools[t.Name()] = e
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name()
	}
	return names
}

// Declarations converts the named tools to upstream function declarations, in
// the given order. Names without a registered tool are skipped.
func (r *Registry) Declarations(names []string) []llm.ToolDecl {
	out := make([]llm.ToolDecl, 0, len(names))
	for _, name := range names {
		e, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, llm.ToolDecl{
			Kind:        llm.ToolFunction,
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			Parameters:  e.tool.Parameters(),
		})
	}
	return out
}

// Validate checks call arguments against the named tool's schema.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if e.schemaErr != nil {
		return fmt.Errorf("compile schema for %s: %w", name, e.schemaErr)
	}
	if err := e.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return nil
}
