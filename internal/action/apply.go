package action

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/portfolio"
)

// Change is one field-level modification made by an action. Path is a
// dotted field path such as "sectionVisibility.about" or "theme.textColor".
type Change struct {
	Path  string
	Value any
}

const maxTitleLength = 120

// NewSectionID generates an id for a custom section.
func NewSectionID() string {
	return "custom-" + uuid.NewString()
}

// Apply validates a single non-batch action against doc and, when valid,
// applies it to doc in place. doc is left untouched when validation fails.
// The returned action is a as applied; an AddSection without an id comes
// back with the id that was generated for it. newID may be nil.
func Apply(a Action, doc *portfolio.Document, newID func() string) (Action, []Change, error) {
	if newID == nil {
		newID = NewSectionID
	}

	var (
		changes []Change
		err     error
	)
	switch v := a.(type) {
	case ReorderSections:
		changes, err = reorder(v, doc)
	case ToggleSectionVisibility:
		changes, err = toggle(v, doc)
	case UpdateSectionTitle:
		changes, err = retitle(v, doc)
	case UpdateContent:
		changes, err = updateContent(v, doc)
	case UpdateTheme:
		changes, err = updateTheme(v, doc)
	case AddSection:
		v, changes, err = addSection(v, doc, newID)
		a = v
	case RemoveSection:
		changes, err = removeSection(v, doc)
	case UpdateLayout:
		changes, err = updateLayout(v, doc)
	case BatchUpdate:
		err = invalid(InvalidAction, "batch_update must be expanded by the caller")
	case Unknown:
		err = invalid(InvalidAction, "unknown action type %q", v.Tag)
	case nil:
		err = invalid(InvalidAction, "empty action")
	default:
		err = invalid(InvalidAction, "unsupported action %T", a)
	}
	if err != nil {
		return a, nil, err
	}
	return a, changes, nil
}

func requireSection(doc *portfolio.Document, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(InvalidAction, "sectionId is required")
	}
	if !doc.HasSection(id) {
		return invalid(UnknownSection, "unknown section %q", id)
	}
	return nil
}

func reorder(a ReorderSections, doc *portfolio.Document) ([]Change, error) {
	if len(a.NewOrder) == 0 {
		return nil, invalid(InvalidAction, "newOrder must list at least one section")
	}
	listed := make(map[string]bool, len(a.NewOrder))
	for _, id := range a.NewOrder {
		if listed[id] {
			return nil, invalid(InvalidAction, "section %q appears more than once in newOrder", id)
		}
		listed[id] = true
		if !doc.HasSection(id) {
			return nil, invalid(UnknownSection, "unknown section %q", id)
		}
	}

	order := slices.Clone(a.NewOrder)
	for _, id := range doc.SectionIDs() {
		if !listed[id] {
			order = append(order, id)
		}
	}
	doc.SectionOrder = order
	return []Change{{Path: "sectionOrder", Value: slices.Clone(order)}}, nil
}

func toggle(a ToggleSectionVisibility, doc *portfolio.Document) ([]Change, error) {
	if err := requireSection(doc, a.SectionID); err != nil {
		return nil, err
	}
	if doc.SectionVisibility == nil {
		doc.SectionVisibility = make(map[string]bool)
	}
	doc.SectionVisibility[a.SectionID] = a.Visible
	return []Change{{Path: "sectionVisibility." + a.SectionID, Value: a.Visible}}, nil
}

func retitle(a UpdateSectionTitle, doc *portfolio.Document) ([]Change, error) {
	if err := requireSection(doc, a.SectionID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(a.NewTitle)
	if len([]rune(title)) > maxTitleLength {
		return nil, invalid(InvalidAction, "newTitle is longer than %d characters", maxTitleLength)
	}
	if title == "" {
		delete(doc.SectionTitles, a.SectionID)
	} else {
		if doc.SectionTitles == nil {
			doc.SectionTitles = make(map[string]string)
		}
		doc.SectionTitles[a.SectionID] = title
	}
	return []Change{{Path: "sectionTitles." + a.SectionID, Value: title}}, nil
}

func updateContent(a UpdateContent, doc *portfolio.Document) ([]Change, error) {
	values, err := decodeContent(a.Updates)
	if err != nil {
		return nil, err
	}
	var changes []Change
	for _, f := range contentFields {
		v, ok := values[f.name]
		if !ok {
			continue
		}
		setContent(doc, f.name, v)
		changes = append(changes, Change{Path: f.name, Value: v})
	}
	return changes, nil
}

func updateTheme(a UpdateTheme, doc *portfolio.Document) ([]Change, error) {
	if a.Theme == (ThemePatch{}) && strings.TrimSpace(a.ColorMode) == "" {
		return nil, invalid(InvalidAction, "update_theme must change at least one color or the color mode")
	}

	fields := []struct {
		name  string
		value string
		dst   *string
	}{
		{"primaryColor", a.Theme.PrimaryColor, &doc.Theme.PrimaryColor},
		{"backgroundColor", a.Theme.BackgroundColor, &doc.Theme.BackgroundColor},
		{"textColor", a.Theme.TextColor, &doc.Theme.TextColor},
	}
	normalized := make([]string, len(fields))
	for i, f := range fields {
		if f.value == "" {
			continue
		}
		c, ok := NormalizeColor(f.value)
		if !ok {
			return nil, invalid(InvalidColor, "invalid %s %q", f.name, f.value)
		}
		normalized[i] = c
	}

	mode := strings.ToLower(strings.TrimSpace(a.ColorMode))
	if mode != "" && mode != portfolio.ColorModeLight && mode != portfolio.ColorModeDark {
		return nil, invalid(InvalidAction, "colorMode must be %q or %q, got %q", portfolio.ColorModeLight, portfolio.ColorModeDark, a.ColorMode)
	}

	var changes []Change
	for i, f := range fields {
		if normalized[i] == "" {
			continue
		}
		*f.dst = normalized[i]
		changes = append(changes, Change{Path: "theme." + f.name, Value: normalized[i]})
	}
	if mode != "" {
		doc.ColorMode = mode
		changes = append(changes, Change{Path: "colorMode", Value: mode})
	}
	return changes, nil
}

func addSection(a AddSection, doc *portfolio.Document, newID func() string) (AddSection, []Change, error) {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return a, nil, invalid(InvalidAction, "add_section requires a non-empty title")
	}
	if len([]rune(title)) > maxTitleLength {
		return a, nil, invalid(InvalidAction, "title is longer than %d characters", maxTitleLength)
	}
	if st := strings.ToLower(strings.TrimSpace(a.SectionType)); st != "" && st != SectionTypeCustom {
		return a, nil, invalid(InvalidAction, "unsupported section type %q", a.SectionType)
	}

	id := strings.TrimSpace(a.SectionID)
	if id != "" {
		if doc.HasSection(id) {
			return a, nil, invalid(InvalidAction, "section %q already exists", id)
		}
	} else {
		for id == "" || doc.HasSection(id) {
			id = newID()
		}
	}

	section := portfolio.CustomSection{ID: id, Title: title, Content: a.Content}
	doc.CustomSections = append(doc.CustomSections, section)
	doc.SectionOrder = doc.SectionIDs()

	a.SectionID = id
	a.Title = title
	return a, []Change{{Path: "customSections." + id, Value: section}}, nil
}

func removeSection(a RemoveSection, doc *portfolio.Document) ([]Change, error) {
	if err := requireSection(doc, a.SectionID); err != nil {
		return nil, err
	}
	id := a.SectionID

	order := slices.DeleteFunc(doc.SectionIDs(), func(s string) bool { return s == id })
	delete(doc.SectionTitles, id)

	// Built-in sections cannot cease to exist; they leave the order and
	// stay hidden if a later reorder brings them back.
	if portfolio.IsBuiltin(id) {
		if doc.SectionVisibility == nil {
			doc.SectionVisibility = make(map[string]bool)
		}
		doc.SectionVisibility[id] = false
		doc.SectionOrder = order
		return []Change{{Path: "sectionOrder", Value: slices.Clone(order)}}, nil
	}

	delete(doc.SectionVisibility, id)
	doc.CustomSections = slices.DeleteFunc(doc.CustomSections, func(s portfolio.CustomSection) bool { return s.ID == id })
	doc.SectionOrder = order
	return []Change{{Path: "customSections." + id, Value: nil}}, nil
}

func updateLayout(a UpdateLayout, doc *portfolio.Document) ([]Change, error) {
	tmpl := strings.ToLower(strings.TrimSpace(a.Template))
	if !portfolio.IsKnownTemplate(tmpl) {
		return nil, invalid(UnknownTemplate, "unknown template %q", a.Template)
	}
	doc.Template = tmpl
	return []Change{{Path: "template", Value: tmpl}}, nil
}
