// Package planner turns a free-text instruction into an edit plan by asking a
// language model. Replies are untrusted: they are decoded strictly here and
// validated again by the executor.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/llm"
	"github.com/kalambet/folio/internal/portfolio"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// Context carries optional hints about the portfolio owner.
type Context struct {
	Role string `json:"role,omitempty"`
}

// Generator produces edit plans. Implementations must return a
// *GenerationError on failure.
type Generator interface {
	Generate(ctx context.Context, instruction string, doc portfolio.Document, pctx Context) (action.Plan, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, instruction string, doc portfolio.Document, pctx Context) (action.Plan, error)

func (f GeneratorFunc) Generate(ctx context.Context, instruction string, doc portfolio.Document, pctx Context) (action.Plan, error) {
	return f(ctx, instruction, doc, pctx)
}

// LLMGenerator generates plans with an llm.Completer.
type LLMGenerator struct {
	client   llm.Completer
	timeout  time.Duration
	maxDepth int
	logger   *slog.Logger
}

// Option configures an LLMGenerator.
type Option func(*LLMGenerator)

// WithTimeout bounds each call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(g *LLMGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxBatchDepth sets the nesting depth advertised to the model.
func WithMaxBatchDepth(n int) Option {
	return func(g *LLMGenerator) {
		if n >= 1 {
			g.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for generation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *LLMGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates an LLMGenerator.
func New(client llm.Completer, opts ...Option) *LLMGenerator {
	g := &LLMGenerator{
		client:   client,
		timeout:  DefaultTimeout,
		maxDepth: action.DefaultMaxBatchDepth,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate asks the model for a plan. Every failure, including an
// unparseable reply, is returned as a *GenerationError.
func (g *LLMGenerator) Generate(ctx context.Context, instruction string, doc portfolio.Document, pctx Context) (action.Plan, error) {
	if strings.TrimSpace(instruction) == "" {
		return action.Plan{}, fail(ReasonBadRequest, errors.New("instruction is empty"))
	}

	user, err := UserPrompt(instruction, doc, pctx)
	if err != nil {
		return action.Plan{}, fail(ReasonBadRequest, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.client.Complete(ctx, llm.Request{
		System: SystemPrompt(g.maxDepth),
		User:   user,
		JSON:   true,
	})
	if err != nil {
		ge := classify(err)
		g.logger.Warn("plan generation failed", "reason", ge.Reason, "retryable", ge.Retryable, "error", err)
		return action.Plan{}, ge
	}

	plan, err := decodePlan(reply)
	if err != nil {
		g.logger.Warn("unusable plan response", "error", err, "response_bytes", len(reply))
		return action.Plan{}, err
	}

	g.logger.Debug("plan generated",
		"actions", len(plan.Actions),
		"confidence", plan.Confidence,
		"duration", time.Since(start),
	)
	return plan, nil
}
