package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/thinkstream/internal/config"
	ctxengine "github.com/user/thinkstream/internal/context"
	"github.com/user/thinkstream/internal/render"
	"github.com/user/thinkstream/internal/runtime"
	"github.com/user/thinkstream/internal/runtime/tools"
	"github.com/user/thinkstream/internal/state"
	"github.com/user/thinkstream/internal/types"
	"github.com/user/thinkstream/pkg/llm"
	"github.com/user/thinkstream/pkg/llm/openai"
)

// turnFlags are the per-request overrides shared by ask and chat.
type turnFlags struct {
	model        string
	effort       string
	tools        []string
	plain        bool
	hideThinking bool
}

func (f *turnFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name (overrides llm.model)")
	cmd.Flags().StringVarP(&f.effort, "effort", "e", "", "reasoning effort: minimal, low, medium or high")
	cmd.Flags().StringSliceVarP(&f.tools, "tools", "t", nil, `tools to enable, or "all" (overrides tools.enabled)`)
	cmd.Flags().BoolVar(&f.plain, "plain", false, "stream the answer without markdown rendering")
	cmd.Flags().BoolVar(&f.hideThinking, "hide-thinking", false, "do not print reasoning summaries")
}

// session wires one CLI invocation: orchestrator, session log and renderer.
type session struct {
	orch   *runtime.Orchestrator
	log    *state.Logger
	out    *render.Renderer
	model  string
	effort llm.Effort
	tools  []string
}

func newSession(cfg *config.Config, f *turnFlags) (*session, error) {
	model := cfg.LLM.Model
	if f.model != "" {
		model = f.model
	}
	effortStr := cfg.LLM.ReasoningEffort
	if f.effort != "" {
		effortStr = f.effort
	}
	effort, err := llm.ParseEffort(effortStr)
	if err != nil {
		return nil, err
	}
	enabled := cfg.Tools.Enabled
	if len(f.tools) > 0 {
		enabled = f.tools
	}
	if cfg.LLM.APIKey == "" {
		slog.Warn("no API key configured; set OPENAI_API_KEY or run thinkstream setup")
	}

	provider := openai.New(&llm.Config{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		RetryAttempts:   cfg.LLM.RetryAttempts,
	})

	engine, err := ctxengine.New(model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return nil, fmt.Errorf("create context engine: %w", err)
	}
	if cfg.SystemPrompt != "" {
		if err := engine.SetPrompt(cfg.SystemPrompt); err != nil {
			return nil, err
		}
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewFetchURLs(tools.FetchOptions{
		Proxy:    cfg.Tools.FetchProxy,
		Timeout:  time.Duration(cfg.Tools.FetchTimeoutSeconds) * time.Second,
		MaxChars: cfg.Tools.MaxFetchChars,
	}))
	registry.Register(tools.NewRunCode(tools.NewLocalSandbox(
		cfg.Tools.SandboxInterpreter,
		time.Duration(cfg.Tools.SandboxTimeoutSeconds)*time.Second,
	)))

	orch := runtime.New(provider, registry, engine, runtime.Options{
		MaxContinuations: cfg.MaxContinuations,
		MaxOutputTokens:  cfg.LLM.MaxOutputTokens,
	})

	logger, err := state.NewLogger(cfg.LogDir, time.Now())
	if err != nil {
		return nil, err
	}

	out, err := render.New(os.Stdout, render.Options{
		Markdown:     !f.plain,
		HideThinking: f.hideThinking,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("session started",
		"session", string(logger.ID()),
		"model", model,
		"effort", string(effort),
		"tools", enabled,
		"log_dir", logger.Dir(),
	)
	return &session{orch: orch, log: logger, out: out, model: model, effort: effort, tools: enabled}, nil
}

// turn streams one user input against prior and returns the terminal event.
func (s *session) turn(ctx context.Context, input string, prior []types.Message) types.StreamEvent {
	if _, err := s.log.StartTurn(state.TurnRequest{
		Model:        s.model,
		Effort:       string(s.effort),
		Input:        input,
		PriorCount:   len(prior),
		EnabledTools: s.tools,
	}); err != nil {
		slog.Error("session log write failed", "dir", s.log.Dir(), "error", err)
	}

	s.out.Reset()
	sinks := types.Sinks{s.log, s.out}
	var last types.StreamEvent
	for ev := range s.orch.StreamTurn(ctx, runtime.TurnRequest{
		Model:        s.model,
		Effort:       s.effort,
		Input:        input,
		Prior:        prior,
		EnabledTools: s.tools,
	}) {
		sinks.Observe(ev)
		if ev.Terminal() {
			last = ev
		}
	}
	return last
}

// close writes session.md. A non-nil err that is not an interruption is
// recorded as fatal.
func (s *session) close(err error) {
	var ferr error
	if err != nil && !errors.Is(err, context.Canceled) {
		ferr = s.log.Fatal(err)
	} else {
		ferr = s.log.Finalize()
	}
	if ferr != nil {
		slog.Error("finalize session log", "dir", s.log.Dir(), "error", ferr)
	}
}

// turnError converts an Error event into a returned error.
func turnError(ev types.StreamEvent) error {
	if ev.Kind != types.EventError {
		return nil
	}
	if ev.Cause != nil {
		return fmt.Errorf("%s: %w", ev.Message, ev.Cause)
	}
	return errors.New(ev.Message)
}
