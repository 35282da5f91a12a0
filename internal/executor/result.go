package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/folio/internal/action"
)

// Status is the outcome of a single action.
type Status string

const (
	StatusApplied Status = "applied"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Outcome records what happened to one action. Index is the action's
// position in the plan; batch members use dotted paths such as "2.1".
type Outcome struct {
	Index  string      `json:"index"`
	Type   action.Type `json:"type"`
	Status Status      `json:"status"`
	Kind   action.Kind `json:"kind,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Result reports the effect of applying a plan.
type Result struct {
	Success bool        `json:"success"`
	Plan    action.Plan `json:"plan"`
	// AppliedChanges maps changed field paths to their final values.
	AppliedChanges map[string]any `json:"appliedChanges"`
	Errors         []string       `json:"errors"`
	Outcomes       []Outcome      `json:"outcomes,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// ErrPartialFailure matches the error returned by Result.Err.
var ErrPartialFailure = errors.New("execution partially failed")

// PartialFailureError is returned by Result.Err when at least one action
// was rejected.
type PartialFailureError struct {
	Errors  []string
	Applied int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d action(s) failed, %d change(s) applied: %s", len(e.Errors), e.Applied, strings.Join(e.Errors, "; "))
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

// Err returns nil when every action applied and a *PartialFailureError
// otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &PartialFailureError{Errors: r.Errors, Applied: len(r.AppliedChanges)}
}

// HasKind reports whether any rejected action failed with kind k.
func (r Result) HasKind(k action.Kind) bool {
	for _, o := range r.Outcomes {
		if o.Kind == k {
			return true
		}
	}
	return false
}
