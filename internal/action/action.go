// Package action defines the closed set of portfolio edit actions, their
// wire encoding, validation against a document and the per-action reducers.
package action

import "strings"

// SchemaVersion identifies the wire shape of actions and plans.
const SchemaVersion = 1

// Type is the wire tag of an action variant.
type Type string

const (
	TypeReorderSections         Type = "reorder_sections"
	TypeToggleSectionVisibility Type = "toggle_section_visibility"
	TypeUpdateSectionTitle      Type = "update_section_title"
	TypeUpdateContent           Type = "update_content"
	TypeUpdateTheme             Type = "update_theme"
	TypeAddSection              Type = "add_section"
	TypeRemoveSection           Type = "remove_section"
	TypeUpdateLayout            Type = "update_layout"
	TypeBatchUpdate             Type = "batch_update"
)

// Types lists every known action type in documentation order.
var Types = []Type{
	TypeReorderSections,
	TypeToggleSectionVisibility,
	TypeUpdateSectionTitle,
	TypeUpdateContent,
	TypeUpdateTheme,
	TypeAddSection,
	TypeRemoveSection,
	TypeUpdateLayout,
	TypeBatchUpdate,
}

// ParseType normalizes a type tag. It accepts snake_case, SCREAMING_CASE,
// kebab-case and camelCase spellings of the known tags. Unrecognized tags
// are returned normalized with ok set to false.
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	var norm string
	if s == strings.ToUpper(s) {
		norm = strings.ToLower(s)
	} else {
		var sb strings.Builder
		for i, r := range s {
			if r >= 'A' && r <= 'Z' {
				if i > 0 && s[i-1] != '_' && s[i-1] != '-' {
					sb.WriteByte('_')
				}
				r += 'a' - 'A'
			}
			sb.WriteRune(r)
		}
		norm = sb.String()
	}
	norm = strings.ReplaceAll(norm, "-", "_")
	t := Type(norm)
	for _, known := range Types {
		if t == known {
			return t, true
		}
	}
	return t, false
}

// Action is one edit operation. The concrete types in this package are
// the only implementations.
type Action interface {
	Type() Type
	Rationale() string
	isAction()
}

// Meta carries the optional free-text reasoning attached to an action.
// Reasoning is informational and has no effect on execution.
type Meta struct {
	Reasoning string `json:"-"`
}

func (m Meta) Rationale() string { return m.Reasoning }
func (Meta) isAction()           {}

// ReorderSections sets the section order. Sections present on the document
// but missing from NewOrder keep their relative order after the listed ones.
type ReorderSections struct {
	Meta
	NewOrder []string `json:"newOrder"`
}

func (ReorderSections) Type() Type { return TypeReorderSections }

type ToggleSectionVisibility struct {
	Meta
	SectionID string `json:"sectionId"`
	Visible   bool   `json:"visible"`
}

func (ToggleSectionVisibility) Type() Type { return TypeToggleSectionVisibility }

// UpdateSectionTitle overrides a section's display title. An empty
// NewTitle removes the override.
type UpdateSectionTitle struct {
	Meta
	SectionID string `json:"sectionId"`
	NewTitle  string `json:"newTitle"`
}

func (UpdateSectionTitle) Type() Type { return TypeUpdateSectionTitle }

type UpdateContent struct {
	Meta
	Updates ContentUpdates `json:"updates"`
}

func (UpdateContent) Type() Type { return TypeUpdateContent }

// ThemePatch lists the palette colors to change. Empty fields are left alone.
type ThemePatch struct {
	PrimaryColor    string `json:"primaryColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
}

type UpdateTheme struct {
	Meta
	Theme     ThemePatch `json:"theme"`
	ColorMode string     `json:"colorMode,omitempty"`
}

func (UpdateTheme) Type() Type { return TypeUpdateTheme }

// SectionTypeCustom is the only section type that can be added.
const SectionTypeCustom = "custom"

// AddSection appends a custom section. When SectionID is empty the
// executor generates one and writes it back into the returned plan.
type AddSection struct {
	Meta
	SectionType string `json:"sectionType,omitempty"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	SectionID   string `json:"sectionId,omitempty"`
}

func (AddSection) Type() Type { return TypeAddSection }

type RemoveSection struct {
	Meta
	SectionID string `json:"sectionId"`
}

func (RemoveSection) Type() Type { return TypeRemoveSection }

type UpdateLayout struct {
	Meta
	Template string `json:"template"`
}

func (UpdateLayout) Type() Type { return TypeUpdateLayout }

// BatchUpdate groups actions that are applied in order. Nesting depth is
// bounded by the executor.
type BatchUpdate struct {
	Meta
	Actions List `json:"actions"`
}

func (BatchUpdate) Type() Type { return TypeBatchUpdate }

// Unknown holds an action whose type tag is not recognized. It always
// fails validation.
type Unknown struct {
	Meta
	Tag     string
	Payload []byte
}

func (u Unknown) Type() Type { return Type(u.Tag) }

// Confidence is the generator's self-reported certainty about a plan.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence accepts the three levels case-insensitively.
func ParseConfidence(s string) (Confidence, bool) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	}
	return "", false
}

// Plan is an ordered list of actions with a human-readable summary.
type Plan struct {
	Summary    string     `json:"summary"`
	Actions    List       `json:"actions"`
	Confidence Confidence `json:"confidence"`
}
