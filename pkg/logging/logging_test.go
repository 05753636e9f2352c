package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, closeFn, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug("attempt finished", "attempt", 2)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "attempt finished", entry["msg"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestNew_TextFileFiltersLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, closeFn, err := New(Options{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closeFn())

	data, _ := os.ReadFile(path)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
	assert.NotContains(t, string(data), "\x1b[", "file output should not be coloured")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")

	_, _, err = New(Options{Level: "chatty"})
	assert.ErrorContains(t, err, "unknown log level")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
}
