// Package completion is the external text-completion service client
// consulted by the worker pool. Each worker owns its own Client because the
// underlying transport is single-threaded.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/backoff"
)

// maxResponseBytes bounds how much of a completion response body is read.
const maxResponseBytes = 1 << 20

// Client requests a completion for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config describes the external completion service to talk to. The
// endpoint speaks the chat-completions wire format: a JSON request with
// model, messages, and max_tokens, answered with a choices array.
type Config struct {
	Endpoint     string
	Model        string
	MaxTokens    int
	SystemPrompt string
}

// HTTPClient is the default Client: one retry on transient failure (timeout,
// 5xx, 429), honoring a 429 response's Retry-After header up to
// backoff.MaxRetryAfter.
type HTTPClient struct {
	cfg   Config
	http  *http.Client
	strat *backoff.Strategy
	log   *zap.Logger
}

// NewHTTPClient builds an HTTPClient. strategy may be nil to use the
// package default jittered exponential backoff.
func NewHTTPClient(cfg Config, httpClient *http.Client, strategy *backoff.Strategy, log *zap.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if strategy == nil {
		strategy, _ = backoff.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{cfg: cfg, http: httpClient, strat: strategy, log: log}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// Complete calls the configured endpoint, retrying exactly once on a
// transient failure.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	reply, err := c.attempt(ctx, prompt)
	if err == nil {
		return reply, nil
	}

	var te *transientError
	if !errors.As(err, &te) {
		return "", err
	}

	delay := te.retryAfter
	if delay == 0 {
		delay = c.strat.Duration(0)
	}
	c.log.Warn("completion request failed, retrying once",
		zap.Error(err), zap.Duration("delay", delay))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return c.attempt(ctx, prompt)
}

type transientError struct {
	err        error
	retryAfter time.Duration
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func (c *HTTPClient) attempt(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("completion: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("completion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &transientError{err: fmt.Errorf("completion: request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &transientError{
			err:        fmt.Errorf("completion: rate limited (429)"),
			retryAfter: backoff.RetryAfter(retryAfter),
		}
	}
	if resp.StatusCode >= 500 {
		return "", &transientError{err: fmt.Errorf("completion: remote error %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("completion: read response: %w", err)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return "", fmt.Errorf("completion: decode response: %w", err)
	}
	if len(wr.Choices) == 0 {
		return "", fmt.Errorf("completion: response carried no choices")
	}
	return wr.Choices[0].Message.Content, nil
}

func (c *HTTPClient) buildRequest(prompt string) wireRequest {
	var messages []wireMessage
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, wireMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	messages = append(messages, wireMessage{Role: "user", Content: prompt})
	return wireRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
