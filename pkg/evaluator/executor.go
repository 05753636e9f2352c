package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/logging"
	"github.com/computerscienceiscool/llm-autorun/pkg/sandbox"
)

// Hooks let the caller render progress; every field is optional
type Hooks struct {
	OnStart  func(index, total int, command string)
	OnLine   func(line string)
	OnResult func(index, total int, result ExecutionResult)
}

// Executor runs command batches sequentially in one working directory.
//
// Security model:
// - the deny policy and validation are advisory text filters
// - the docker backend is the only real isolation boundary
// - every command, including refused ones, goes to the audit log
type Executor struct {
	runner    Runner
	policy    *sandbox.DenyPolicy
	audit     *sandbox.AuditLogger
	logger    *slog.Logger
	sessionID string
	dir       string
	maxLen    int
	hooks     Hooks

	commandsRun int
	mu          sync.Mutex
}

// ExecutorOptions wires an Executor
type ExecutorOptions struct {
	Runner    Runner
	Policy    *sandbox.DenyPolicy
	Audit     *sandbox.AuditLogger
	Logger    *slog.Logger
	SessionID string
	Dir       string
	MaxLength int
	Hooks     Hooks
}

// NewExecutor creates a new executor instance
func NewExecutor(opts ExecutorOptions) *Executor {
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = config.MaxCommandLength
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &Executor{
		runner:    opts.Runner,
		policy:    opts.Policy,
		audit:     opts.Audit,
		logger:    logging.OrDiscard(opts.Logger),
		sessionID: opts.SessionID,
		dir:       dir,
		maxLen:    maxLen,
		hooks:     opts.Hooks,
	}
}

// Dir returns the working directory commands run in
func (e *Executor) Dir() string {
	return e.dir
}

// RunBatch executes commands in order. A failing command never stops the batch;
// only ctx cancellation does, in which case the partial batch and ctx.Err() are returned.
func (e *Executor) RunBatch(ctx context.Context, commands []string) (Batch, error) {
	batch := Batch{Results: make([]ExecutionResult, 0, len(commands))}
	total := len(commands)

	for i, command := range commands {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if e.hooks.OnStart != nil {
			e.hooks.OnStart(i+1, total, command)
		}

		result, err := e.runOne(ctx, command)
		if err != nil && ctx.Err() != nil {
			e.auditResult(result, "interrupted")
			batch.Results = append(batch.Results, result)
			return batch, ctx.Err()
		}

		e.auditResult(result, "")
		batch.Results = append(batch.Results, result)
		if e.hooks.OnResult != nil {
			e.hooks.OnResult(i+1, total, result)
		}
	}
	return batch, nil
}

// runOne applies validation and the deny policy, then hands the command to the runner
func (e *Executor) runOne(ctx context.Context, command string) (ExecutionResult, error) {
	if err := sandbox.ValidateCommand(command, e.maxLen); err != nil {
		e.logger.Warn("command rejected", "command", command, "reason", err)
		return ExecutionResult{Command: command, Status: StatusBlocked, BlockedBy: err.Error()}, nil
	}

	if v := e.policy.Check(command); v.Blocked {
		e.logger.Warn("command blocked", "command", command, "pattern", v.Pattern)
		return ExecutionResult{Command: command, Status: StatusBlocked, BlockedBy: v.Reason}, nil
	}

	e.logger.Debug("running command", "command", command, "dir", e.dir)
	result, err := e.runner.Run(ctx, command, e.dir, e.hooks.OnLine)
	if err != nil {
		if ctx.Err() != nil {
			return result, err
		}
		var startErr *apperrors.RunnerStartError
		if errors.As(err, &startErr) {
			e.logger.Error("runner failed to start", "command", command, "err", err)
			result.Command = command
			result.Status = StatusStartError
			result.CrashError = err.Error()
			return result, nil
		}
		result.Command = command
		result.Status = StatusFailed
		result.CrashError = err.Error()
		return result, nil
	}

	e.mu.Lock()
	e.commandsRun++
	e.mu.Unlock()

	e.logger.Debug("command finished", "command", command, "status", result.Status, "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}

func (e *Executor) auditResult(r ExecutionResult, override string) {
	status := string(r.Status)
	if override != "" {
		status = override
	}
	msg := r.ErrorText()
	if r.Status == StatusFailed || r.Status == StatusOK {
		msg = "exit=" + strconv.Itoa(r.ExitCode) + " " + msg
	}
	e.audit.Log(e.sessionID, "exec", r.Command, status, msg)
}

// GetCommandsRun returns the number of commands handed to the runner
func (e *Executor) GetCommandsRun() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commandsRun
}
