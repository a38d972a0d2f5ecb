package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// RunCode executes a script inside a Sandbox and returns its output.
type RunCode struct {
	sandbox Sandbox
}

// NewRunCode creates a new run_code tool.
func NewRunCode(sb Sandbox) *RunCode { return &RunCode{sandbox: sb} }

func (r *RunCode) Name() string { return "run_code" }
func (r *RunCode) Description() string {
	return "Run a Python script in an isolated sandbox without network access and return its standard output"
}
func (r *RunCode) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {"type": "string", "description": "The Python source to run"}
		},
		"required": ["code"]
	}`)
}

func (r *RunCode) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	if params.Code == "" {
		return nil, fmt.Errorf("code is required")
	}

	ex, err := r.sandbox.Start(ctx, params.Code)
	if err != nil {
		return nil, fmt.Errorf("start sandbox: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ex.Terminate()
		case <-done:
		}
	}()
	out, err := ex.Wait()
	close(done)
	if err != nil {
		return nil, err
	}

	if out == "" {
		out = "(no output)"
	}
	return &Result{Text: out}, nil
}
