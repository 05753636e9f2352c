package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

func TestComplete_Success(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"mkdir Demo"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{URL: srv.URL, Model: "test-model", APIKey: "secret", Temperature: 0.3, MaxTokens: 2048})
	resp, err := c.Complete(context.Background(), []Message{System("be terse"), User("make a dir")})

	require.NoError(t, err)
	assert.Equal(t, "mkdir Demo", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotEmpty(t, resp.Raw)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 2048, got.MaxTokens)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestComplete_APIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"top-level message", 401, `{"code":20015,"message":"Invalid token"}`, "Invalid token"},
		{"nested error", 429, `{"error":{"message":"rate limited","type":"quota"}}`, "rate limited"},
		{"string error", 400, `{"error":"bad model"}`, "bad model"},
		{"plain text", 502, "upstream unavailable", "upstream unavailable"},
		{"empty body", 500, "", noErrorDetail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Options{URL: srv.URL}).Complete(context.Background(), []Message{User("hi")})

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrAPI))
			var apiErr *apperrors.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.expected, apiErr.Message)
		})
	}
}

func TestComplete_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(Options{URL: url}).Complete(context.Background(), []Message{User("hi")})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
	assert.False(t, errors.Is(err, apperrors.ErrAPI))
	assert.Contains(t, err.Error(), "Connection Error")
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(Options{URL: srv.URL, Timeout: 50 * time.Millisecond}).Complete(context.Background(), []Message{User("hi")})

	assert.True(t, errors.Is(err, apperrors.ErrTransport))
}

func TestComplete_EmptyContentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(Options{URL: srv.URL}).Complete(context.Background(), []Message{User("hi")})

	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestComplete_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{URL: srv.URL}).Complete(context.Background(), []Message{User("hi")})
	assert.ErrorContains(t, err, "missing choices")
}

func TestComplete_NoMessages(t *testing.T) {
	_, err := NewClient(Options{}).Complete(context.Background(), nil)
	assert.Error(t, err)
}

func TestComplete_WritesArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ls"}}]}`))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "artifacts")
	resp, err := NewClient(Options{URL: srv.URL, ArtifactDir: dir}).Complete(context.Background(), []Message{User("hi")})

	require.NoError(t, err)
	require.NotEmpty(t, resp.ArtifactPath)
	assert.True(t, strings.HasPrefix(filepath.Base(resp.ArtifactPath), "response_"))

	data, err := os.ReadFile(resp.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"choices\"")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, "Qwen/QwQ-32B", c.Model())
	assert.Equal(t, "https://api.siliconflow.cn/v1/chat/completions", c.url)
	assert.Nil(t, c.artifacts)
}
