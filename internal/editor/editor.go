// Package editor is the single entry point for AI edits: it turns an
// instruction and a document into an edit result by running role detection,
// plan generation and plan execution in sequence.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/executor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/portfolio"
)

// ErrEmptyInstruction is returned when Edit is called without an instruction.
var ErrEmptyInstruction = errors.New("instruction is empty")

// RoleDetector names the portfolio owner's role; "" means unknown.
type RoleDetector interface {
	Detect(ctx context.Context, doc portfolio.Document) string
}

// PlanCache stores generated plans by request fingerprint.
type PlanCache interface {
	Get(ctx context.Context, key string) (action.Plan, bool, error)
	Set(ctx context.Context, key string, plan action.Plan) error
}

// KeyFunc derives a cache key from the generation inputs.
type KeyFunc func(instruction, role string, doc portfolio.Document) (string, error)

// Request is an AI edit request.
type Request struct {
	Instruction string
	Document    portfolio.Document
	Context     planner.Context
}

// Metadata captures diagnostic information about an edit.
type Metadata struct {
	Role                 string `json:"role,omitempty"`
	RoleDetected         bool   `json:"roleDetected,omitempty"`
	CacheHit             bool   `json:"cacheHit,omitempty"`
	GenerationDurationMs int64  `json:"generationDurationMs"`
}

// Response is the outcome of a successful generation. Result.Success may
// still be false when some actions were rejected.
type Response struct {
	Document portfolio.Document `json:"document"`
	Result   executor.Result    `json:"result"`
	Meta     Metadata           `json:"meta"`
}

// Editor orchestrates generation and execution.
type Editor struct {
	gen    planner.Generator
	exec   *executor.Executor
	roles  RoleDetector
	cache  PlanCache
	key    KeyFunc
	logger *slog.Logger
}

// Option configures an Editor.
type Option func(*Editor)

// WithRoleDetector enables role detection for requests that carry no role.
func WithRoleDetector(d RoleDetector) Option {
	return func(e *Editor) { e.roles = d }
}

// WithCache enables plan caching under keys produced by key.
func WithCache(c PlanCache, key KeyFunc) Option {
	return func(e *Editor) {
		if c != nil && key != nil {
			e.cache = c
			e.key = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Editor.
func New(gen planner.Generator, exec *executor.Executor, opts ...Option) *Editor {
	if exec == nil {
		exec = executor.New()
	}
	e := &Editor{gen: gen, exec: exec, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Edit generates a plan for req and applies it to a copy of req.Document.
// A generation failure is returned as the error (a *planner.GenerationError)
// and the executor is not run; execution failures are reported in
// Response.Result.
func (e *Editor) Edit(ctx context.Context, req Request) (Response, error) {
	return e.edit(ctx, req, true)
}

// Preview is Edit without writing to the plan cache.
func (e *Editor) Preview(ctx context.Context, req Request) (Response, error) {
	return e.edit(ctx, req, false)
}

func (e *Editor) edit(ctx context.Context, req Request, store bool) (Response, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return Response{}, ErrEmptyInstruction
	}

	var meta Metadata
	pctx := req.Context

	// Keyed on the caller's role so a hit never waits on detection.
	plan, key, hit := e.cached(ctx, req.Instruction, pctx.Role, req.Document)
	meta.CacheHit = hit
	if !hit {
		if pctx.Role == "" && e.roles != nil {
			pctx.Role = e.roles.Detect(ctx, req.Document)
			meta.RoleDetected = pctx.Role != ""
		}
		start := time.Now()
		var err error
		plan, err = e.gen.Generate(ctx, req.Instruction, req.Document, pctx)
		meta.GenerationDurationMs = time.Since(start).Milliseconds()
		if err != nil {
			return Response{}, err
		}
	}

	// A plan generated for an abandoned request is discarded.
	if err := ctx.Err(); err != nil {
		return Response{}, &planner.GenerationError{Reason: planner.ReasonCanceled, Err: err}
	}

	meta.Role = pctx.Role

	doc, res := e.exec.Apply(req.Document, plan)

	if store && !hit && key != "" && res.Success {
		if err := e.cache.Set(ctx, key, res.Plan); err != nil {
			e.logger.Warn("editor: caching plan failed", "error", err)
		}
	}

	e.logger.Info("edit applied",
		"actions", len(plan.Actions),
		"success", res.Success,
		"errors", len(res.Errors),
		"confidence", plan.Confidence,
		"cache_hit", hit,
	)
	return Response{Document: doc, Result: res, Meta: meta}, nil
}

func (e *Editor) cached(ctx context.Context, instruction, role string, doc portfolio.Document) (action.Plan, string, bool) {
	if e.cache == nil {
		return action.Plan{}, "", false
	}
	key, err := e.key(instruction, role, doc)
	if err != nil {
		e.logger.Warn("editor: computing cache key failed", "error", err)
		return action.Plan{}, "", false
	}
	plan, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("editor: reading plan cache failed", "error", err)
		return action.Plan{}, key, false
	}
	return plan, key, ok
}

const maxResumeChars = 12000

// SyncFromResume asks the generator to bring the portfolio in line with the
// given resume text.
func (e *Editor) SyncFromResume(ctx context.Context, doc portfolio.Document, resumeText string, pctx planner.Context) (Response, error) {
	text := strings.TrimSpace(resumeText)
	if text == "" {
		return Response{}, fmt.Errorf("resume text is empty")
	}
	if len(text) > maxResumeChars {
		cut := maxResumeChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	instruction := "Update the portfolio so it reflects the resume below. " +
		"Refresh the hero, about text, skills, experience, projects and certificates; " +
		"keep existing entries the resume still supports and do not invent facts.\n\n[Resume]\n" + text
	return e.Edit(ctx, Request{Instruction: instruction, Document: doc, Context: pctx})
}
