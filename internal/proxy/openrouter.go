// Package proxy is a minimal OpenRouter chat completion client.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/folio/internal/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "anthropic/claude-sonnet-4"

const (
	defaultEndpoint = "https://openrouter.ai/api/v1"
	requestTimeout  = 60 * time.Second
	planningTemp    = 0.2
	errorBodyLimit  = 4 << 10

	rateLimitAttempts = 3
	firstBackoff      = 500 * time.Millisecond
	maxRetryAfter     = 30 * time.Second
)

// Client sends completions to OpenRouter. It satisfies llm.Completer.
type Client struct {
	key      string
	endpoint string
	model    string
	http     *http.Client
	backoff  time.Duration
}

// NewClient returns a client for the public OpenRouter endpoint. An empty
// model selects DefaultModel.
func NewClient(apiKey, model string) *Client {
	return &Client{
		key:      apiKey,
		endpoint: defaultEndpoint,
		model:    cmpOr(model, DefaultModel),
		http:     &http.Client{Timeout: requestTimeout},
		backoff:  firstBackoff,
	}
}

// NewClientWithBaseURL points the client at another OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	c := NewClient(apiKey, model)
	c.endpoint = strings.TrimRight(baseURL, "/")
	return c
}

// Complete sends req as a single chat completion and returns the first
// choice's text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	body := chatRequest{
		Model:       cmpOr(req.Model, c.model),
		Temperature: planningTemp,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, Message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, Message{Role: "user", Content: req.User})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}
	resp, err := c.withRateLimitRetry(ctx, raw)
	if err != nil {
		return "", err
	}
	text := resp.text()
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// withRateLimitRetry resends body while OpenRouter answers 429, waiting
// either the advertised Retry-After or an exponential backoff.
func (c *Client) withRateLimitRetry(ctx context.Context, body []byte) (*chatResponse, error) {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		resp, err := c.post(ctx, body)
		se, limited := err.(*statusError)
		if err == nil || !limited || se.code != http.StatusTooManyRequests {
			return resp, err
		}
		if attempt == rateLimitAttempts {
			return nil, fmt.Errorf("rate limited after %d attempts: %w", attempt, err)
		}
		pause := wait
		if se.retryAfter > 0 {
			pause = se.retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
		wait *= 2
	}
}

func (c *Client) post(ctx context.Context, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("HTTP-Referer", "https://github.com/kalambet/folio")
	req.Header.Set("X-Title", "folio")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &statusError{
			code:       resp.StatusCode,
			msg:        strings.TrimSpace(string(msg)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding openrouter reply: %w", err)
	}
	if out.Error != nil {
		return nil, &statusError{code: out.Error.Code, msg: out.Error.Message}
	}
	return &out, nil
}

// statusError is a failed reply. It unwraps to llm.StatusError so callers
// classify it without knowing about OpenRouter.
type statusError struct {
	code       int
	msg        string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return "openrouter: status " + strconv.Itoa(e.code)
	}
	return "openrouter: status " + strconv.Itoa(e.code) + ": " + e.msg
}

func (e *statusError) Unwrap() error { return llm.StatusError(e.code) }

// parseRetryAfter reads a delay in seconds, capped at maxRetryAfter. HTTP
// dates and junk yield zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
