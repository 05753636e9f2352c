// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/logging"
)

const noErrorDetail = "No detailed error message available"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build messages with the matching role
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Response is one completion. Raw holds the undecoded body.
type Response struct {
	Content      string
	FinishReason string
	Raw          []byte
	ArtifactPath string
}

// Completer is the narrow interface the controller depends on
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Response, error)
}

// Options configures a Client
type Options struct {
	URL         string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	ArtifactDir string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client is the HTTP implementation of Completer
type Client struct {
	url         string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	http        *http.Client
	artifacts   *ArtifactWriter
	logger      *slog.Logger
}

// NewClient creates a client; zero options fall back to the defaults
func NewClient(opts Options) *Client {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = config.DefaultAPIURL
	}
	model := opts.Model
	if model == "" {
		model = config.DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAPITimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	c := &Client{
		url:         url,
		model:       model,
		apiKey:      opts.APIKey,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		http:        httpClient,
		logger:      logging.OrDiscard(opts.Logger),
	}
	if opts.ArtifactDir != "" {
		c.artifacts = NewArtifactWriter(opts.ArtifactDir)
	}
	return c
}

// Model returns the model name sent with each request
func (c *Client) Model() string {
	return c.model
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends messages and returns the first choice.
// Network failures are *errors.TransportError, non-2xx replies *errors.APIError.
func (c *Client) Complete(ctx context.Context, messages []Message) (Response, error) {
	if len(messages) == 0 {
		return Response{}, fmt.Errorf("llm chat requires at least one message")
	}

	payload, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	c.logger.Debug("sending completion request", "url", c.url, "model", c.model, "messages", len(messages))

	resp, err := c.http.Do(request)
	if err != nil {
		return Response{}, &apperrors.TransportError{Endpoint: c.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &apperrors.TransportError{Endpoint: c.url, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("completion response", "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	out := Response{Raw: body}
	if c.artifacts != nil {
		path, err := c.artifacts.Write(body)
		if err != nil {
			c.logger.Warn("failed to write response artifact", "err", err)
		} else {
			out.ArtifactPath = path
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &apperrors.APIError{StatusCode: resp.StatusCode, Message: ErrorMessage(body)}
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return out, fmt.Errorf("response missing choices")
	}
	out.Content = decoded.Choices[0].Message.Content
	out.FinishReason = strings.TrimSpace(decoded.Choices[0].FinishReason)
	return out, nil
}

// ErrorMessage pulls a human-readable message out of an error body.
// It tries "message", then "error.message", then "error" as a string, then the raw text.
func ErrorMessage(body []byte) string {
	var decoded struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg := strings.TrimSpace(decoded.Message); msg != "" {
			return msg
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(decoded.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var flat string
		if json.Unmarshal(decoded.Error, &flat) == nil && strings.TrimSpace(flat) != "" {
			return strings.TrimSpace(flat)
		}
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return raw
	}
	return noErrorDetail
}
