package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"transport", &TransportError{Endpoint: "http://x", Err: context.DeadlineExceeded}, ErrTransport},
		{"api", &APIError{StatusCode: 401, Message: "bad key"}, ErrAPI},
		{"runner start", &RunnerStartError{Shell: "pwsh", Err: fmt.Errorf("not found")}, ErrRunnerStart},
		{"command", &CommandError{Command: "false", ExitCode: 1}, ErrCommandFailed},
		{"blocked", &BlockedError{Command: "rm -rf /", Reason: "recursive delete"}, ErrBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{Endpoint: "http://x", Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "Connection Error")
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 429, Message: "rate limited"}
	assert.Equal(t, "API Error (HTTP 429): rate limited", err.Error())

	var apiErr *APIError
	assert.True(t, errors.As(fmt.Errorf("call: %w", err), &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote(&APIError{StatusCode: 500}))
	assert.True(t, IsRemote(&TransportError{Err: fmt.Errorf("dial")}))
	assert.False(t, IsRemote(&CommandError{Command: "x", ExitCode: 2}))
	assert.False(t, IsRemote(nil))
}
