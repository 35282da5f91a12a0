package diff

import (
	"reflect"
	"slices"
	"sort"

	"github.com/kalambet/folio/internal/portfolio"
)

// Change is one field that differs between two documents. Hunks is set for
// long-form text fields.
type Change struct {
	Path   string `json:"path"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
	Hunks  []Hunk `json:"hunks,omitempty"`
}

// Document lists the fields that differ between before and after, using the
// same paths the executor reports in applied changes.
func Document(before, after portfolio.Document) []Change {
	var out []Change
	add := func(path string, b, a any) {
		if empty(b) && empty(a) || reflect.DeepEqual(b, a) {
			return
		}
		out = append(out, Change{Path: path, Before: b, After: a})
	}
	text := func(path, b, a string) {
		if b != a {
			out = append(out, Change{Path: path, Before: b, After: a, Hunks: TextDiff(b, a)})
		}
	}

	text("heroTitle", before.HeroTitle, after.HeroTitle)
	text("heroSubtitle", before.HeroSubtitle, after.HeroSubtitle)
	text("aboutText", before.AboutText, after.AboutText)
	add("skills", before.Skills, after.Skills)
	add("experience", before.Experience, after.Experience)
	add("projects", before.Projects, after.Projects)
	add("testimonials", before.Testimonials, after.Testimonials)
	add("certificates", before.Certificates, after.Certificates)

	add("theme.primaryColor", before.Theme.PrimaryColor, after.Theme.PrimaryColor)
	add("theme.backgroundColor", before.Theme.BackgroundColor, after.Theme.BackgroundColor)
	add("theme.textColor", before.Theme.TextColor, after.Theme.TextColor)
	add("colorMode", before.ColorMode, after.ColorMode)
	add("template", before.Template, after.Template)

	if b, a := before.SectionIDs(), after.SectionIDs(); !slices.Equal(b, a) {
		out = append(out, Change{Path: "sectionOrder", Before: b, After: a})
	}
	for _, id := range unionIDs(before, after) {
		if bv, av := before.IsVisible(id), after.IsVisible(id); bv != av {
			out = append(out, Change{Path: "sectionVisibility." + id, Before: bv, After: av})
		}
		add("sectionTitles."+id, before.SectionTitles[id], after.SectionTitles[id])
	}

	for _, id := range customIDs(before, after) {
		bs, bok := before.CustomSection(id)
		as, aok := after.CustomSection(id)
		path := "customSections." + id
		switch {
		case bok && !aok:
			out = append(out, Change{Path: path, Before: bs})
		case !bok && aok:
			out = append(out, Change{Path: path, After: as})
		case bs != as:
			out = append(out, Change{Path: path, Before: bs, After: as, Hunks: TextDiff(bs.Content, as.Content)})
		}
	}
	return out
}

// Paths returns just the changed paths.
func Paths(changes []Change) []string {
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	return paths
}

// empty treats nil and zero-length slices as the same value.
func empty(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.Len() == 0
}

func unionIDs(a, b portfolio.Document) []string {
	seen := map[string]bool{}
	var ids []string
	for _, id := range slices.Concat(a.SectionIDs(), b.SectionIDs()) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range []map[string]string{a.SectionTitles, b.SectionTitles} {
		for id := range m {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func customIDs(a, b portfolio.Document) []string {
	seen := map[string]bool{}
	var ids []string
	for _, d := range []portfolio.Document{a, b} {
		for _, s := range d.CustomSections {
			if !seen[s.ID] {
				seen[s.ID] = true
				ids = append(ids, s.ID)
			}
		}
	}
	return ids
}
