package errors

import (
	"errors"
	"fmt"
)

// Error categories surfaced to the caller
var (
	ErrTransport       = fmt.Errorf("TRANSPORT_ERROR")
	ErrAPI             = fmt.Errorf("API_ERROR")
	ErrExtractionEmpty = fmt.Errorf("EXTRACTION_EMPTY")
	ErrRunnerStart     = fmt.Errorf("RUNNER_START")
	ErrCommandFailed   = fmt.Errorf("COMMAND_FAILED")
	ErrBlocked         = fmt.Errorf("BLOCKED")
	ErrDirLocked       = fmt.Errorf("DIR_LOCKED")
	ErrMissingAPIKey   = fmt.Errorf("MISSING_API_KEY")
)

// TransportError means the remote request never completed (DNS, connect, timeout)
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Connection Error: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// APIError means the remote service answered with a non-success status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error (HTTP %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// RunnerStartError means the interpreter could not be spawned
type RunnerStartError struct {
	Shell string
	Err   error
}

func (e *RunnerStartError) Error() string {
	if e.Shell == "" {
		return fmt.Sprintf("runner failed to start: %v", e.Err)
	}
	return fmt.Sprintf("runner %s failed to start: %v", e.Shell, e.Err)
}

func (e *RunnerStartError) Unwrap() error {
	return e.Err
}

func (e *RunnerStartError) Is(target error) bool {
	return target == ErrRunnerStart
}

// CommandError records a command that ran and exited non-zero
type CommandError struct {
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// BlockedError records a command refused by the deny policy or validation
type BlockedError struct {
	Command string
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command %q blocked: %s", e.Command, e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// IsRemote reports whether err came from the remote completion call
func IsRemote(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrAPI)
}

// IsRunnerStart reports whether err means no interpreter could be spawned
func IsRunnerStart(err error) bool {
	return errors.Is(err, ErrRunnerStart)
}
