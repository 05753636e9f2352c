package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

const timeoutExitCode = 124

// Runner executes one command in dir, streaming stdout lines to onLine.
// A non-nil error means the command never ran (start failure) or ctx was cancelled.
type Runner interface {
	Run(ctx context.Context, command, dir string, onLine func(string)) (ExecutionResult, error)
}

// ShellRunner runs commands through the first available local shell
type ShellRunner struct {
	Shells         []string
	Timeout        time.Duration
	ForwardSlashes bool

	lookPath func(string) (string, error)
}

// NewShellRunner creates a runner; empty shells use the platform defaults
func NewShellRunner(shells []string, timeout time.Duration, forwardSlashes bool) *ShellRunner {
	if len(shells) == 0 {
		shells = config.DefaultShells()
	}
	return &ShellRunner{
		Shells:         shells,
		Timeout:        timeout,
		ForwardSlashes: forwardSlashes,
		lookPath:       exec.LookPath,
	}
}

// ShellArgs returns the argv that makes shell run command
func ShellArgs(shell, command string) []string {
	base := shell
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	switch base {
	case "pwsh", "powershell":
		return []string{shell, "-NoProfile", "-NonInteractive", "-Command", command}
	case "cmd":
		return []string{shell, "/C", command}
	default:
		return []string{shell, "-c", command}
	}
}

// resolveShell returns the first configured shell found on PATH
func (r *ShellRunner) resolveShell() (string, error) {
	lookPath := r.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, shell := range r.Shells {
		if path, err := lookPath(shell); err == nil {
			return path, nil
		}
	}
	return "", &apperrors.RunnerStartError{
		Shell: strings.Join(r.Shells, ", "),
		Err:   fmt.Errorf("no shell found on PATH: %w", exec.ErrNotFound),
	}
}

// checkDir fails when dir is set but is not an existing directory
func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", dir)
	}
	return nil
}

// Run executes command. Exit status, timeout and crash details are in the result.
func (r *ShellRunner) Run(ctx context.Context, command, dir string, onLine func(string)) (ExecutionResult, error) {
	result := ExecutionResult{Command: command}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if r.ForwardSlashes {
		command = strings.ReplaceAll(command, `\`, "/")
	}

	if err := checkDir(dir); err != nil {
		result.Status = StatusFailed
		result.ExitCode = -1
		result.CrashError = err.Error()
		return result, nil
	}

	shell, err := r.resolveShell()
	if err != nil {
		result.Status = StatusStartError
		result.CrashError = err.Error()
		return result, err
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := ShellArgs(shell, command)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 2 * time.Second

	stdout := newLineWriter(onLine)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		startErr := &apperrors.RunnerStartError{Shell: shell, Err: err}
		result.Status = StatusStartError
		result.CrashError = startErr.Error()
		return result, startErr
	}

	waitErr := cmd.Wait()
	stdout.Flush()

	result.Duration = time.Since(startTime)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctx.Err() != nil {
		result.Status = StatusFailed
		result.ExitCode = -1
		return result, ctx.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Status = StatusFailed
		result.ExitCode = timeoutExitCode
		result.TimedOut = true
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.Status = StatusOK
	case errors.As(waitErr, &exitErr):
		result.Status = StatusFailed
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			result.CrashError = exitErr.String()
		}
	default:
		result.Status = StatusFailed
		result.ExitCode = -1
		result.CrashError = waitErr.Error()
	}
	return result, nil
}
