package action

import (
	"errors"
	"fmt"

	"github.com/kalambet/folio/internal/portfolio"
)

// DefaultMaxBatchDepth bounds how deeply BatchUpdate actions may nest.
const DefaultMaxBatchDepth = 3

// Validate reports whether a can be applied to doc. It returns nil or a
// *ValidationError and never modifies doc. Batch members are checked in
// order against the document as updated by the members before them.
func Validate(a Action, doc portfolio.Document) error {
	return ValidateDepth(a, doc, DefaultMaxBatchDepth)
}

// ValidateDepth is Validate with an explicit batch nesting limit.
func ValidateDepth(a Action, doc portfolio.Document, maxDepth int) error {
	sim := doc.Clone()
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("pending-%d", seq)
	}
	return simulate(a, &sim, 0, maxDepth, newID)
}

func simulate(a Action, doc *portfolio.Document, depth, maxDepth int, newID func() string) error {
	b, ok := a.(BatchUpdate)
	if !ok {
		_, _, err := Apply(a, doc, newID)
		return err
	}
	if err := CheckDepth(depth, maxDepth); err != nil {
		return err
	}
	for i, member := range b.Actions {
		if err := simulate(member, doc, depth+1, maxDepth, newID); err != nil {
			return Nested(err, i)
		}
	}
	return nil
}

// CheckDepth returns a BatchTooDeep error when a batch enclosed by depth
// other batches would exceed maxDepth levels of nesting.
func CheckDepth(depth, maxDepth int) error {
	if depth+1 > maxDepth {
		return invalid(BatchTooDeep, "batch nesting exceeds the maximum depth of %d", maxDepth)
	}
	return nil
}

// Nested prefixes the path of a validation error with the index of the
// batch member it came from.
func Nested(err error, index int) error {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("action %d: %w", index, err)
	}
	out := *ve
	if out.Path == "" {
		out.Path = fmt.Sprint(index)
	} else {
		out.Path = fmt.Sprintf("%d.%s", index, out.Path)
	}
	return &out
}
