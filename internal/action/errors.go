package action

import "fmt"

// Kind classifies a validation failure. Kinds are errors themselves so
// callers can test with errors.Is(err, action.UnknownSection).
type Kind string

const (
	UnknownSection  Kind = "unknown_section"
	UnknownTemplate Kind = "unknown_template"
	InvalidColor    Kind = "invalid_color"
	MalformedEntry  Kind = "malformed_entry"
	BatchTooDeep    Kind = "batch_too_deep"
	InvalidAction   Kind = "invalid_action"
)

func (k Kind) Error() string { return string(k) }

// ValidationError reports why an action cannot be applied to a document.
// Path locates the offending action inside nested batches ("" for the
// action itself, "1.0" for the first member of its second member).
type ValidationError struct {
	Kind    Kind
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("action %s: %s", e.Path, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
