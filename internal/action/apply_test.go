package action

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/folio/internal/portfolio"
)

func TestApply_ReorderPartial(t *testing.T) {
	doc := testDoc()
	_, changes, err := Apply(ReorderSections{NewOrder: []string{"projects"}}, &doc, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []string{"projects", "hero", "about", "skills", "talks"}
	if diff := cmp.Diff(want, doc.SectionOrder); diff != "" {
		t.Errorf("SectionOrder mismatch (-want +got):\n%s", diff)
	}
	if len(changes) != 1 || changes[0].Path != "sectionOrder" {
		t.Errorf("changes = %+v", changes)
	}
}

func TestApply_AddSectionGeneratesID(t *testing.T) {
	doc := testDoc()
	ids := []string{"talks", "gen-2"}
	newID := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	applied, changes, err := Apply(AddSection{Title: " Press "}, &doc, newID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	add := applied.(AddSection)
	if add.SectionID != "gen-2" {
		t.Errorf("SectionID = %q, want gen-2 (first candidate collides)", add.SectionID)
	}
	if s, ok := doc.CustomSection("gen-2"); !ok || s.Title != "Press" {
		t.Errorf("custom section = %+v, %v", s, ok)
	}
	if got := doc.SectionIDs(); got[len(got)-1] != "gen-2" {
		t.Errorf("new section not appended: %v", got)
	}
	if len(changes) != 1 || changes[0].Path != "customSections.gen-2" {
		t.Errorf("changes = %+v", changes)
	}
}

func TestApply_RemoveSection(t *testing.T) {
	doc := testDoc()
	doc.SectionTitles = map[string]string{"talks": "Speaking"}

	if _, _, err := Apply(RemoveSection{SectionID: "talks"}, &doc, nil); err != nil {
		t.Fatalf("Apply(custom): %v", err)
	}
	if doc.HasSection("talks") || len(doc.SectionTitles) != 0 {
		t.Errorf("custom section still present: %+v", doc)
	}

	if _, _, err := Apply(RemoveSection{SectionID: "about"}, &doc, nil); err != nil {
		t.Fatalf("Apply(builtin): %v", err)
	}
	want := []string{"hero", "skills", "projects"}
	if diff := cmp.Diff(want, doc.SectionIDs()); diff != "" {
		t.Errorf("SectionIDs mismatch (-want +got):\n%s", diff)
	}
	if doc.IsVisible("about") {
		t.Error("removed built-in section should be hidden")
	}
}

func TestApply_UpdateContent(t *testing.T) {
	doc := testDoc()
	a := UpdateContent{Updates: mustContent(t, map[string]any{
		"heroTitle":  "John Roe",
		"skills":     []string{"go", "sql"},
		"experience": []map[string]string{{"title": "Engineer", "company": "Acme", "period": "2020-2024"}},
		"mood":       "ignored",
	})}
	_, changes, err := Apply(a, &doc, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if doc.HeroTitle != "John Roe" {
		t.Errorf("HeroTitle = %q", doc.HeroTitle)
	}
	wantExp := []portfolio.Experience{{Title: "Engineer", Company: "Acme", Period: "2020-2024"}}
	if diff := cmp.Diff(wantExp, doc.Experience); diff != "" {
		t.Errorf("Experience mismatch (-want +got):\n%s", diff)
	}
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	if diff := cmp.Diff([]string{"heroTitle", "skills", "experience"}, paths); diff != "" {
		t.Errorf("change paths mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_ThemeInvalidLeavesDocument(t *testing.T) {
	doc := testDoc()
	doc.Theme.PrimaryColor = "#000000"
	a := UpdateTheme{Theme: ThemePatch{PrimaryColor: "#ABCDEF", TextColor: "bogus"}}
	if _, _, err := Apply(a, &doc, nil); err == nil {
		t.Fatal("expected error")
	}
	if doc.Theme.PrimaryColor != "#000000" {
		t.Errorf("PrimaryColor = %q, want unchanged", doc.Theme.PrimaryColor)
	}
}

func TestApply_ThemeNormalizes(t *testing.T) {
	doc := testDoc()
	_, changes, err := Apply(UpdateTheme{Theme: ThemePatch{PrimaryColor: "#ABCDEF"}, ColorMode: "Dark"}, &doc, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if doc.Theme.PrimaryColor != "#abcdef" || doc.ColorMode != "dark" {
		t.Errorf("theme = %+v mode = %q", doc.Theme, doc.ColorMode)
	}
	if len(changes) != 2 {
		t.Errorf("changes = %+v, want 2", changes)
	}
}

func TestApply_RejectsBatch(t *testing.T) {
	doc := testDoc()
	if _, _, err := Apply(BatchUpdate{}, &doc, nil); err == nil {
		t.Fatal("expected Apply to reject batch actions")
	}
}
