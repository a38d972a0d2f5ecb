package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Sandbox starts isolated, ephemeral code executions.
type Sandbox interface {
	Start(ctx context.Context, code string) (Execution, error)
}

// Execution is one running piece of code.
type Execution interface {
	// Wait blocks until the code exits and returns its standard output.
	Wait() (string, error)
	// Terminate stops the execution early. Wait still has to be called.
	Terminate() error
}

// LocalSandbox runs code with a local interpreter inside a throwaway working
// directory. On macOS the process is additionally wrapped in sandbox-exec with
// network access denied.
type LocalSandbox struct {
	Interpreter string
	Timeout     time.Duration
}

// NewLocalSandbox creates a sandbox for the given interpreter.
func NewLocalSandbox(interpreter string, timeout time.Duration) *LocalSandbox {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LocalSandbox{Interpreter: interpreter, Timeout: timeout}
}

// denyNetworkProfile is the SBPL profile handed to sandbox-exec.
const denyNetworkProfile = "(version 1)\n(allow default)\n(deny network*)\n"

func sandboxExecAvailable() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("sandbox-exec")
	return err == nil
}

func (s *LocalSandbox) Start(ctx context.Context, code string) (Execution, error) {
	interp, err := exec.LookPath(s.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("find interpreter %s: %w", s.Interpreter, err)
	}

	dir, err := os.MkdirTemp("", "thinkstream-run-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write script: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	var cmd *exec.Cmd
	if sandboxExecAvailable() {
		cmd = exec.CommandContext(ctx, "sandbox-exec", "-p", denyNetworkProfile, interp, script)
	} else {
		cmd = exec.CommandContext(ctx, interp, script)
	}
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
		"PYTHONDONTWRITEBYTECODE=1",
	}

	ex := &localExecution{cmd: cmd, ctx: ctx, cancel: cancel, dir: dir, timeout: s.Timeout}
	cmd.Stdout = &ex.stdout
	cmd.Stderr = &ex.stderr
	if err := cmd.Start(); err != nil {
		ex.cleanup()
		return nil, fmt.Errorf("start %s: %w", s.Interpreter, err)
	}
	return ex, nil
}

type localExecution struct {
	cmd     *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc
	dir     string
	timeout time.Duration

	stdout bytes.Buffer
	stderr bytes.Buffer

	once sync.Once
}

func (e *localExecution) Wait() (string, error) {
	err := e.cmd.Wait()
	ctxErr := e.ctx.Err()
	e.cleanup()

	out := e.stdout.String()
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return out, fmt.Errorf("execution timed out after %s", e.timeout)
	case errors.Is(ctxErr, context.Canceled):
		return out, fmt.Errorf("execution terminated: %w", ctxErr)
	case err != nil:
		return out, fmt.Errorf("execution failed: %w\n%s", err, strings.TrimSpace(e.stderr.String()))
	}
	return out, nil
}

func (e *localExecution) Terminate() error {
	e.cancel()
	return nil
}

func (e *localExecution) cleanup() {
	e.once.Do(func() {
		e.cancel()
		os.RemoveAll(e.dir)
	})
}
