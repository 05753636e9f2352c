package evaluator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

// Status classifies one command's outcome
type Status string

const (
	StatusOK         Status = "ok"
	StatusFailed     Status = "failed"      // ran and exited non-zero, or timed out
	StatusBlocked    Status = "blocked"     // refused before execution
	StatusStartError Status = "start_error" // no interpreter could be spawned
)

// ExecutionResult is the outcome of one command. Not mutated after return.
type ExecutionResult struct {
	Command    string
	Status     Status
	ExitCode   int
	Stdout     string
	Stderr     string
	CrashError string // runner-level failure text
	BlockedBy  string // deny pattern or validation reason
	Duration   time.Duration
	TimedOut   bool
}

// Succeeded reports whether the command ran and exited 0
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusOK
}

// ErrorText summarises why the command did not succeed
func (r ExecutionResult) ErrorText() string {
	switch r.Status {
	case StatusOK:
		return ""
	case StatusBlocked:
		return "blocked: " + r.BlockedBy
	case StatusStartError:
		return "could not start: " + r.CrashError
	}

	if r.TimedOut {
		return fmt.Sprintf("timed out after %v (exit code %d)", r.Duration.Round(time.Second), r.ExitCode)
	}
	if stderr := strings.TrimSpace(r.Stderr); stderr != "" {
		return stderr
	}
	if r.CrashError != "" {
		return r.CrashError
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// Err returns the typed error for a result that did not succeed, nil otherwise
func (r ExecutionResult) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusBlocked:
		return &apperrors.BlockedError{Command: r.Command, Reason: r.BlockedBy}
	case StatusStartError:
		return &apperrors.RunnerStartError{Err: errors.New(r.CrashError)}
	}
	return &apperrors.CommandError{Command: r.Command, ExitCode: r.ExitCode}
}

// Batch holds one attempt's results in execution order
type Batch struct {
	Attempt int
	Results []ExecutionResult
}

// Failed reports whether any command did not succeed
func (b Batch) Failed() bool {
	for _, r := range b.Results {
		if !r.Succeeded() {
			return true
		}
	}
	return false
}

// Failures returns the results that did not succeed
func (b Batch) Failures() []ExecutionResult {
	var out []ExecutionResult
	for _, r := range b.Results {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Err joins the errors of every failed result
func (b Batch) Err() error {
	var errs []error
	for _, r := range b.Results {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Commands returns the commands in execution order
func (b Batch) Commands() []string {
	out := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, r.Command)
	}
	return out
}
