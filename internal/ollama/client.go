// Package ollama talks to a local Ollama daemon: liveness, model inventory,
// model pulls and single-shot chat completions for the planner and the role
// detector.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/folio/internal/llm"
)

const (
	pingTimeout    = 2 * time.Second
	listTimeout    = 10 * time.Second
	planningTemp   = 0.2
	jsonFormatFlag = "json"
)

// Message is one turn of an Ollama chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is an HTTP client for one Ollama daemon. Requests carry no client
// side timeout; callers bound them through the context.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the daemon at baseURL.
func New(baseURL string) *Client {
	return &Client{base: strings.TrimSuffix(baseURL, "/"), http: &http.Client{}}
}

// send issues one request and returns the response when the daemon answered
// 200. Any other status is returned as a *statusErr with the body closed.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("ollama: build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &statusErr{path: path, code: resp.StatusCode}
	}
	return resp, nil
}

type statusErr struct {
	path string
	code int
}

func (e *statusErr) Error() string { return fmt.Sprintf("ollama: %s answered %d", e.path, e.code) }

// IsRunning reports whether the daemon answers the model listing endpoint.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	resp, err := c.send(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// ListModels returns the tags of every locally installed model.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	resp, err := c.send(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var inventory struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&inventory); err != nil {
		return nil, fmt.Errorf("ollama: decode model list: %w", err)
	}
	tags := make([]string, 0, len(inventory.Models))
	for _, m := range inventory.Models {
		tags = append(tags, m.Name)
	}
	return tags, nil
}

// HasModel reports whether name is installed. A bare name matches any of
// its tags, so "llama3.2" is satisfied by "llama3.2:latest".
func (c *Client) HasModel(ctx context.Context, name string) bool {
	tags, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(tags, func(tag string) bool {
		return tag == name || strings.HasPrefix(tag, name+":")
	})
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// PullProgress is one status line of a streamed model download.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PullModel downloads name and blocks until the stream ends. onProgress, when
// non-nil, sees every status line.
func (c *Client) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/pull", pullRequest{Name: name, Stream: true})
	if err != nil {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pull %s: read progress: %w", name, err)
		}
		if p.Error != "" {
			return fmt.Errorf("pull %s: %s", name, p.Error)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Format   string       `json:"format,omitempty"`
	Options  *chatOptions `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Chat runs a non-streaming chat against model. jsonMode constrains the reply
// to a single JSON object. Failures wrap the llm sentinel errors so the
// planner can classify them.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error) {
	in := chatRequest{
		Model:    model,
		Messages: messages,
		Options:  &chatOptions{Temperature: planningTemp},
	}
	if jsonMode {
		in.Format = jsonFormatFlag
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/chat", in)
	var se *statusErr
	switch {
	case errors.As(err, &se) && se.code == http.StatusNotFound:
		// The daemon answers 404 for a model that was never pulled.
		return "", fmt.Errorf("chat with %s: model not installed: %w", model, llm.ErrBadRequest)
	case errors.As(err, &se):
		return "", fmt.Errorf("chat with %s: %w: %w", model, err, llm.StatusError(se.code))
	case err != nil:
		return "", fmt.Errorf("chat with %s: %w", model, err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat with %s: decode reply: %w", model, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("chat with %s: %s: %w", model, out.Error, llm.ErrUnavailable)
	}
	return out.Message.Content, nil
}

// Completer adapts the client to llm.Completer. Requests that name a model
// override defaultModel.
func (c *Client) Completer(defaultModel string) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		model := cmpOr(req.Model, defaultModel)
		msgs := make([]Message, 0, 2)
		if req.System != "" {
			msgs = append(msgs, Message{Role: "system", Content: req.System})
		}
		msgs = append(msgs, Message{Role: "user", Content: req.User})

		reply, err := c.Chat(ctx, model, msgs, req.JSON)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(reply) == "" {
			return "", fmt.Errorf("chat with %s: %w", model, llm.ErrEmptyResponse)
		}
		return reply, nil
	})
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
