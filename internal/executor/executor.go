// Package executor applies validated edit plans to portfolio documents.
package executor

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/portfolio"
)

// minReadableContrast is the WCAG AA ratio for normal text.
const minReadableContrast = 4.5

// Executor applies plans sequentially with partial-failure semantics. It
// holds no per-call state and is safe for concurrent use.
type Executor struct {
	maxDepth int
	newID    func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxBatchDepth bounds BatchUpdate nesting. Values below 1 are ignored.
func WithMaxBatchDepth(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.maxDepth = n
		}
	}
}

// WithIDGenerator sets the function used to name added sections.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxDepth: action.DefaultMaxBatchDepth,
		newID:    action.NewSectionID,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// run is the mutable state of a single Apply call.
type run struct {
	doc     portfolio.Document
	changes map[string]any
	errs    []string
	out     []Outcome
	applied int
}

// Apply runs every action of plan against doc in order, each against the
// result of the previous one. Invalid actions are recorded and skipped;
// nothing already applied is rolled back. doc itself is never modified.
func (e *Executor) Apply(doc portfolio.Document, plan action.Plan) (portfolio.Document, Result) {
	r := &run{
		doc:     doc.Clone(),
		changes: make(map[string]any),
		errs:    []string{},
	}

	applied := make(action.List, len(plan.Actions))
	for i, a := range plan.Actions {
		applied[i] = e.step(r, a, strconv.Itoa(i), 0)
	}

	resultPlan := plan
	resultPlan.Actions = applied

	res := Result{
		Success:        len(r.errs) == 0,
		Plan:           resultPlan,
		AppliedChanges: r.changes,
		Errors:         r.errs,
		Outcomes:       r.out,
		Warnings:       themeWarnings(r.doc),
	}
	return r.doc, res
}

// step applies one action and returns it as applied.
func (e *Executor) step(r *run, a action.Action, index string, depth int) action.Action {
	if batch, ok := a.(action.BatchUpdate); ok {
		return e.batch(r, batch, index, depth)
	}

	applied, changes, err := action.Apply(a, &r.doc, e.newID)
	if err != nil {
		r.fail(a, index, err)
		return a
	}
	for _, c := range changes {
		r.changes[c.Path] = c.Value
	}
	r.applied++
	r.out = append(r.out, Outcome{Index: index, Type: a.Type(), Status: StatusApplied})
	return applied
}

func (e *Executor) batch(r *run, b action.BatchUpdate, index string, depth int) action.Action {
	if err := action.CheckDepth(depth, e.maxDepth); err != nil {
		r.fail(b, index, err)
		return b
	}

	errsBefore, appliedBefore := len(r.errs), r.applied
	members := make(action.List, len(b.Actions))
	for i, m := range b.Actions {
		members[i] = e.step(r, m, index+"."+strconv.Itoa(i), depth+1)
	}
	b.Actions = members

	status := StatusApplied
	switch {
	case len(r.errs) > errsBefore && r.applied == appliedBefore:
		status = StatusFailed
	case len(r.errs) > errsBefore:
		status = StatusPartial
	}
	r.out = append(r.out, Outcome{Index: index, Type: action.TypeBatchUpdate, Status: status})
	return b
}

func (r *run) fail(a action.Action, index string, err error) {
	typ := action.Type("")
	if a != nil {
		typ = a.Type()
	}
	var kind action.Kind
	var ve *action.ValidationError
	if errors.As(err, &ve) {
		kind = ve.Kind
		err = errors.New(ve.Message)
	}
	msg := fmt.Sprintf("action %s (%s): %v", index, typ, err)
	r.errs = append(r.errs, msg)
	r.out = append(r.out, Outcome{Index: index, Type: typ, Status: StatusFailed, Kind: kind, Error: msg})
}

func themeWarnings(doc portfolio.Document) []string {
	t := doc.Theme
	if t.TextColor == "" || t.BackgroundColor == "" {
		return nil
	}
	ratio := action.ContrastRatio(t.TextColor, t.BackgroundColor)
	if ratio == 0 || ratio >= minReadableContrast {
		return nil
	}
	return []string{fmt.Sprintf("low contrast between textColor %s and backgroundColor %s (%.1f:1)", t.TextColor, t.BackgroundColor, ratio)}
}
