// Package runner invokes the external engine under test.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ppiankov/goldrun/internal/workdir"
)

const (
	stdoutLog = "stdout.log"
	stderrLog = "stderr.log"

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the engine itself has exited.
	waitDelay = 5 * time.Second
)

// Engine describes how to launch the engine binary.
type Engine struct {
	Binary      string
	MaxRuntime  time.Duration // 0 disables
	IdleTimeout time.Duration // kill after no stdout for this long; 0 disables

	// Env adds variables to the engine's environment. A value of the form
	// "env:NAME" is copied from the harness's NAME.
	Env map[string]string
}

// Invocation records one engine run.
type Invocation struct {
	ConfigPath string        `json:"config_path"`
	WorkDir    string        `json:"work_dir"`
	ExitCode   int           `json:"exit_code"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	StdoutLog  string        `json:"stdout_log,omitempty"`
	StderrLog  string        `json:"stderr_log,omitempty"`
}

// Check resolves the engine binary through PATH and the extra
// environment. The returned path is absolute, so it stays valid after Run
// switches to the case's working directory.
func (e *Engine) Check() (string, error) {
	if e.Binary == "" {
		return "", fmt.Errorf("%w: no engine binary configured", ErrEngineNotFound)
	}
	path, err := exec.LookPath(e.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEngineNotFound, e.Binary, err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEngineNotFound, e.Binary, err)
	}
	if _, err := resolveEnv(e.Env); err != nil {
		return "", err
	}
	return path, nil
}

// WorkDirFor returns the directory the engine runs in for configPath: the
// parent of the configuration file's directory. Input paths inside
// configuration files are written relative to it.
func WorkDirFor(configPath string) string {
	return filepath.Dir(filepath.Dir(configPath))
}

// Run launches the engine with configPath as its only argument and blocks
// until it exits. The process working directory is switched to
// WorkDirFor(configPath) for the duration of the call. Engine output is
// captured under logDir.
//
// On a non-zero exit the returned Invocation is populated and the error
// wraps ErrEngineFailed. A returned error wrapping ErrEngineNotFound means
// no later case can run either.
func (e *Engine) Run(ctx context.Context, configPath, logDir string) (*Invocation, error) {
	bin, err := e.Check()
	if err != nil {
		return nil, err
	}

	cfg, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	inv := &Invocation{
		ConfigPath: cfg,
		WorkDir:    WorkDirFor(cfg),
		ExitCode:   -1,
		StdoutLog:  filepath.Join(logDir, stdoutLog),
		StderrLog:  filepath.Join(logDir, stderrLog),
	}

	var runErr error
	scopeErr := workdir.Do(inv.WorkDir, func() error {
		runErr = e.exec(ctx, bin, inv)
		return nil
	})
	if scopeErr != nil {
		return inv, scopeErr
	}
	return inv, runErr
}

func (e *Engine) exec(ctx context.Context, bin string, inv *Invocation) error {
	stdout, err := os.Create(inv.StdoutLog)
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := os.Create(inv.StderrLog)
	if err != nil {
		return fmt.Errorf("create stderr log: %w", err)
	}
	defer func() { _ = stderr.Close() }()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if e.MaxRuntime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.MaxRuntime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	env, err := engineEnv(e.Env)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(runCtx, bin, inv.ConfigPath)
	cmd.Env = env
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	slog.Debug("spawning engine", "engine", bin, "config", inv.ConfigPath, "dir", inv.WorkDir)

	inv.StartedAt = time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s: %v", ErrEngineNotFound, bin, err)
		}
		return fmt.Errorf("start engine: %w", err)
	}

	idle := newIdleTimeoutReader(pipe, e.IdleTimeout, cancel)
	_, copyErr := io.Copy(stdout, idle)
	idle.Stop()

	waitErr := cmd.Wait()
	inv.Duration = time.Since(inv.StartedAt)
	if cmd.ProcessState != nil {
		inv.ExitCode = cmd.ProcessState.ExitCode()
	}

	if copyErr != nil {
		slog.Debug("engine stdout copy ended with error", "error", copyErr)
	}

	switch {
	case idle.Idled():
		return &RunError{Reason: fmt.Sprintf("no output for %s", e.IdleTimeout), ExitCode: inv.ExitCode, Err: ErrTimeout}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return &RunError{Reason: fmt.Sprintf("exceeded max runtime %s", e.MaxRuntime), ExitCode: inv.ExitCode, Err: ErrTimeout}
	case ctx.Err() != nil:
		return fmt.Errorf("engine interrupted: %w", ctx.Err())
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &RunError{Reason: fmt.Sprintf("exit code %d", inv.ExitCode), ExitCode: inv.ExitCode, Err: ErrEngineFailed}
		}
		return fmt.Errorf("wait engine: %w", waitErr)
	}

	slog.Debug("engine finished", "config", inv.ConfigPath, "exit_code", inv.ExitCode, "duration", inv.Duration)
	return nil
}
