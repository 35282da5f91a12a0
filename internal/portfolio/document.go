package portfolio

import "slices"

// Document is the full content and presentation state of a portfolio.
type Document struct {
	HeroTitle    string `json:"heroTitle,omitempty"`
	HeroSubtitle string `json:"heroSubtitle,omitempty"`
	AboutText    string `json:"aboutText,omitempty"`

	Skills         []string        `json:"skills,omitempty"`
	Projects       []Project       `json:"projects,omitempty"`
	Experience     []Experience    `json:"experience,omitempty"`
	Testimonials   []Testimonial   `json:"testimonials,omitempty"`
	Certificates   []Certificate   `json:"certificates,omitempty"`
	CustomSections []CustomSection `json:"customSections,omitempty"`

	Theme     Theme  `json:"theme"`
	ColorMode string `json:"colorMode,omitempty"`
	Template  string `json:"template,omitempty"`

	SectionOrder      []string          `json:"sectionOrder,omitzero"`
	SectionVisibility map[string]bool   `json:"sectionVisibility,omitempty"`
	SectionTitles     map[string]string `json:"sectionTitles,omitempty"`
}

type Project struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Period      string `json:"period,omitempty"`
	Description string `json:"description,omitempty"`
}

type Testimonial struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Quote string `json:"quote"`
}

type Certificate struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
	URL    string `json:"url,omitempty"`
}

// CustomSection is a user-defined free-text section.
type CustomSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Theme holds the palette. Empty fields mean "template default".
type Theme struct {
	PrimaryColor    string `json:"primaryColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
}

const (
	ColorModeLight = "light"
	ColorModeDark  = "dark"
)

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	c := d
	c.Skills = slices.Clone(d.Skills)
	c.Experience = slices.Clone(d.Experience)
	c.Testimonials = slices.Clone(d.Testimonials)
	c.Certificates = slices.Clone(d.Certificates)
	c.CustomSections = slices.Clone(d.CustomSections)
	c.SectionOrder = slices.Clone(d.SectionOrder)
	if d.Projects != nil {
		c.Projects = make([]Project, len(d.Projects))
		for i, p := range d.Projects {
			p.Tags = slices.Clone(p.Tags)
			c.Projects[i] = p
		}
	}
	if d.SectionVisibility != nil {
		c.SectionVisibility = make(map[string]bool, len(d.SectionVisibility))
		for k, v := range d.SectionVisibility {
			c.SectionVisibility[k] = v
		}
	}
	if d.SectionTitles != nil {
		c.SectionTitles = make(map[string]string, len(d.SectionTitles))
		for k, v := range d.SectionTitles {
			c.SectionTitles[k] = v
		}
	}
	return c
}

// CustomSection returns the custom section with the given id.
func (d Document) CustomSection(id string) (CustomSection, bool) {
	for _, s := range d.CustomSections {
		if s.ID == id {
			return s, true
		}
	}
	return CustomSection{}, false
}

// HasSection reports whether id names a built-in section or one of the
// document's custom sections.
func (d Document) HasSection(id string) bool {
	if IsBuiltin(id) {
		return true
	}
	_, ok := d.CustomSection(id)
	return ok
}

// SectionIDs returns the effective section order. Stored ids that name
// neither a built-in nor an existing custom section are dropped, duplicates
// keep their first position, and custom sections missing from the stored
// order are appended. A nil order means the default order; an empty one
// means every built-in section has been removed.
func (d Document) SectionIDs() []string {
	stored := d.SectionOrder
	if stored == nil {
		stored = DefaultSectionOrder()
	}

	seen := make(map[string]bool, len(stored)+len(d.CustomSections))
	ids := make([]string, 0, len(stored)+len(d.CustomSections))
	for _, id := range stored {
		if seen[id] || !d.HasSection(id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, s := range d.CustomSections {
		if !seen[s.ID] {
			seen[s.ID] = true
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// IsVisible reports whether a section is shown. Sections are visible
// unless explicitly hidden.
func (d Document) IsVisible(id string) bool {
	v, ok := d.SectionVisibility[id]
	return !ok || v
}

// Title returns the display title of a section: the override when set,
// otherwise the custom section title or the built-in default.
func (d Document) Title(id string) string {
	if t := d.SectionTitles[id]; t != "" {
		return t
	}
	if s, ok := d.CustomSection(id); ok {
		return s.Title
	}
	return builtinTitles[id]
}
