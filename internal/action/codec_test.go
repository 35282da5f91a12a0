package action

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustContent(t *testing.T, fields map[string]any) ContentUpdates {
	t.Helper()
	u, err := ContentFrom(fields)
	if err != nil {
		t.Fatalf("ContentFrom: %v", err)
	}
	return u
}

func TestRoundTrip_AllVariants(t *testing.T) {
	actions := List{
		ReorderSections{NewOrder: []string{"hero", "skills", "about"}, Meta: Meta{Reasoning: "skills first"}},
		ToggleSectionVisibility{SectionID: "testimonials", Visible: false},
		UpdateSectionTitle{SectionID: "about", NewTitle: "Who I am"},
		UpdateContent{Updates: mustContent(t, map[string]any{
			"heroTitle": "Ada Lovelace",
			"skills":    []string{"math", "engines"},
		})},
		UpdateTheme{Theme: ThemePatch{PrimaryColor: "#1a2b3c"}, ColorMode: "dark"},
		AddSection{SectionType: "custom", Title: "Talks", Content: "GopherCon 2024", SectionID: "talks"},
		RemoveSection{SectionID: "certificates"},
		UpdateLayout{Template: "minimal"},
		BatchUpdate{Actions: List{
			ToggleSectionVisibility{SectionID: "about", Visible: true},
			BatchUpdate{Actions: List{UpdateLayout{Template: "classic"}}},
		}},
	}

	for _, a := range actions {
		t.Run(string(a.Type()), func(t *testing.T) {
			data, err := Marshal(a)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal(%s): %v", data, err)
			}
			if diff := cmp.Diff(a, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_Plan(t *testing.T) {
	plan := Plan{
		Summary:    "Swap about and skills",
		Actions:    List{ReorderSections{NewOrder: []string{"hero", "skills", "about"}}},
		Confidence: ConfidenceHigh,
	}
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Plan
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(plan, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshal_EnvelopeShape(t *testing.T) {
	data, err := Marshal(ToggleSectionVisibility{SectionID: "about", Visible: true, Meta: Meta{Reasoning: "show it"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"toggle_section_visibility","payload":{"sectionId":"about","visible":true},"reasoning":"show it"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestUnmarshal_InlinePayload(t *testing.T) {
	a, err := Unmarshal([]byte(`{"type":"UPDATE_LAYOUT","template":"developer","reasoning":"code heavy"}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := UpdateLayout{Template: "developer", Meta: Meta{Reasoning: "code heavy"}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_UnknownType(t *testing.T) {
	a, err := Unmarshal([]byte(`{"type":"delete_everything","payload":{"all":true}}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	u, ok := a.(Unknown)
	if !ok {
		t.Fatalf("got %T, want Unknown", a)
	}
	if u.Tag != "delete_everything" {
		t.Errorf("Tag = %q", u.Tag)
	}

	data, err := Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"all":true`) {
		t.Errorf("payload not preserved: %s", data)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not an object", `["reorder_sections"]`},
		{"missing type", `{"payload":{"newOrder":["hero"]}}`},
		{"type not string", `{"type":7}`},
		{"payload wrong shape", `{"type":"reorder_sections","payload":{"newOrder":"hero"}}`},
		{"null", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.in)); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.in)
			}
		})
	}

	if _, err := Unmarshal([]byte(`{"payload":{}}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("err = %v, want ErrMissingType", err)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in    string
		want  Type
		known bool
	}{
		{"reorder_sections", TypeReorderSections, true},
		{"REORDER_SECTIONS", TypeReorderSections, true},
		{"reorderSections", TypeReorderSections, true},
		{"toggle-section-visibility", TypeToggleSectionVisibility, true},
		{"BatchUpdate", TypeBatchUpdate, true},
		{"rewrite_everything", "rewrite_everything", false},
	}
	for _, tt := range tests {
		got, known := ParseType(tt.in)
		if got != tt.want || known != tt.known {
			t.Errorf("ParseType(%q) = (%q, %v), want (%q, %v)", tt.in, got, known, tt.want, tt.known)
		}
	}
}

func TestParseConfidence(t *testing.T) {
	if c, ok := ParseConfidence(" High "); !ok || c != ConfidenceHigh {
		t.Errorf("ParseConfidence(High) = (%q, %v)", c, ok)
	}
	if _, ok := ParseConfidence("certain"); ok {
		t.Error("ParseConfidence(certain) should fail")
	}
}

func nestedBatchJSON(levels int) string {
	inner := `{"type":"toggle_section_visibility","payload":{"sectionId":"about","visible":false}}`
	for range levels {
		inner = `{"type":"batch_update","payload":{"actions":[` + inner + `]}}`
	}
	return inner
}

func TestUnmarshal_BatchNestingLimit(t *testing.T) {
	tests := map[string]struct {
		levels  int
		wantErr bool
	}{
		"at limit":   {levels: MaxDecodeDepth - 1, wantErr: false},
		"past limit": {levels: MaxDecodeDepth, wantErr: true},
		"very deep":  {levels: 5000, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var l List
			err := json.Unmarshal([]byte("["+nestedBatchJSON(tt.levels)+"]"), &l)
			if tt.wantErr {
				if !errors.Is(err, ErrNestedTooDeep) {
					t.Errorf("err = %v, want ErrNestedTooDeep", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			depth := 0
			for a := l[0]; ; depth++ {
				b, ok := a.(BatchUpdate)
				if !ok {
					break
				}
				a = b.Actions[0]
			}
			if depth != tt.levels {
				t.Errorf("decoded %d batch levels, want %d", depth, tt.levels)
			}
		})
	}
}
