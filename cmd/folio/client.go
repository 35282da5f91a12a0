package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/folio/internal/config"
)

// apiClient talks to the local folio server.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// newAPIClient is a variable so tests can point commands at a fake server.
var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	token, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return nil, fmt.Errorf("reading API token: %w", err)
	}
	return &apiClient{
		base:  fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token: token,
		// A synchronous edit may take the whole generator timeout.
		http: &http.Client{Timeout: cfg.Generator.Timeout + 30*time.Second},
	}, nil
}

// portfolioPath builds /portfolios/{id}[/rest...] with id escaped.
func portfolioPath(id string, rest ...string) string {
	return "/" + strings.Join(append([]string{"portfolios", url.PathEscape(id)}, rest...), "/")
}

// call sends in (when non-nil) as JSON and decodes a successful reply into
// out (when non-nil). Replies with status 400 or above become *apiError.
func (c *apiClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable, is folio running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s reply: %w", method, path, err)
	}
	return nil
}

// apiError is a failed reply. The fields mirror the server's error envelope;
// Body keeps the raw reply for endpoints that return a payload with an
// error status.
type apiError struct {
	Status    int    `json:"-"`
	Body      []byte `json:"-"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e *apiError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server returned %d: %s", e.Status, e.Message)
	switch {
	case e.Reason != "" && e.Retryable:
		fmt.Fprintf(&b, " (%s, retry later)", e.Reason)
	case e.Reason != "":
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

func readAPIError(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned %d (reading body: %w)", resp.StatusCode, err)
	}
	e := &apiError{Status: resp.StatusCode, Body: raw}
	var envelope struct {
		Error *apiError `json:"error"`
	}
	envelope.Error = e
	if json.Unmarshal(raw, &envelope) != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}
