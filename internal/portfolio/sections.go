package portfolio

import "slices"

// Built-in section identifiers.
const (
	SectionHero         = "hero"
	SectionAbout        = "about"
	SectionSkills       = "skills"
	SectionExperience   = "experience"
	SectionProjects     = "projects"
	SectionTestimonials = "testimonials"
	SectionCertificates = "certificates"
	SectionContact      = "contact"
)

var builtinOrder = []string{
	SectionHero,
	SectionAbout,
	SectionSkills,
	SectionExperience,
	SectionProjects,
	SectionTestimonials,
	SectionCertificates,
	SectionContact,
}

var builtinTitles = map[string]string{
	SectionHero:         "Home",
	SectionAbout:        "About",
	SectionSkills:       "Skills",
	SectionExperience:   "Experience",
	SectionProjects:     "Projects",
	SectionTestimonials: "Testimonials",
	SectionCertificates: "Certificates",
	SectionContact:      "Contact",
}

// DefaultSectionOrder returns the built-in sections in their default order.
func DefaultSectionOrder() []string {
	return slices.Clone(builtinOrder)
}

// IsBuiltin reports whether id is a built-in section id.
func IsBuiltin(id string) bool {
	_, ok := builtinTitles[id]
	return ok
}

var templates = []string{"minimal", "modern", "classic", "creative", "developer", "executive"}

// DefaultTemplate is used for documents that have not picked a layout.
const DefaultTemplate = "modern"

// KnownTemplates returns the supported layout template names.
func KnownTemplates() []string {
	return slices.Clone(templates)
}

// IsKnownTemplate reports whether name is a supported layout template.
func IsKnownTemplate(name string) bool {
	return slices.Contains(templates, name)
}

// New returns an empty document with the default layout.
func New() Document {
	return Document{
		Template:     DefaultTemplate,
		ColorMode:    ColorModeLight,
		SectionOrder: DefaultSectionOrder(),
	}
}
