// Package role infers the professional role of a portfolio's owner so the
// plan generator can tailor its suggestions.
package role

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/folio/internal/llm"
	"github.com/kalambet/folio/internal/portfolio"
)

const (
	detectionTimeout = 3 * time.Second
	maxRoleChars     = 60
)

// Detector uses a fast model to name the portfolio owner's role.
type Detector struct {
	client llm.Completer
	model  string
}

// NewDetector creates a Detector. An empty model uses the completer's default.
func NewDetector(client llm.Completer, model string) *Detector {
	return &Detector{client: client, model: model}
}

// Detect returns the owner's role, or "" when it cannot be determined. On any
// failure (timeout, malformed JSON, provider error) it returns "" so edits
// never block on detection.
func (d *Detector) Detect(ctx context.Context, doc portfolio.Document) string {
	system, user := BuildPrompt(doc)
	if strings.TrimSpace(user) == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, detectionTimeout)
	defer cancel()

	raw, err := d.client.Complete(ctx, llm.Request{System: system, User: user, JSON: true, Model: d.model})
	if err != nil {
		slog.Warn("role detection failed", "error", err)
		return ""
	}

	var result struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		slog.Warn("failed to unmarshal role from LLM response", "error", err, "response", raw)
		return ""
	}
	return normalize(result.Role)
}

func normalize(role string) string {
	role = strings.Join(strings.Fields(role), " ")
	switch strings.ToLower(role) {
	case "unknown", "n/a", "none":
		return ""
	}
	if len(role) > maxRoleChars {
		return ""
	}
	return role
}
