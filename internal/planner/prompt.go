package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/portfolio"
)

const systemPromptTemplate = `You are a portfolio editing assistant. You turn the user's instruction into a plan of edit actions for their portfolio website. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Output shape:
{"summary": "<one sentence describing the plan>", "confidence": "high" | "medium" | "low", "actions": [<action>, ...]}

Every action has the shape {"type": "<type>", "payload": {...}, "reasoning": "<optional short why>"}.

Action types and payloads:
- reorder_sections: {"newOrder": [section ids]} (listed ids move to the front in that order; omitted ids follow)
- toggle_section_visibility: {"sectionId": id, "visible": true|false}
- update_section_title: {"sectionId": id, "newTitle": text}
- update_content: {"updates": {field: value}} where field is one of: %s
    experience entries: {"title", "company", "period", "description"}; title and company required
    projects entries: {"title", "description", "link", "imageUrl", "tags"}; title required
    testimonials entries: {"name", "role", "quote"}; name and quote required
    certificates entries: {"name", "issuer", "date", "url"}; name required
    list fields replace the whole list, so include existing entries you want to keep
- update_theme: {"theme": {"primaryColor", "backgroundColor", "textColor"}, "colorMode": "light" | "dark"}; colors are #rgb, #rrggbb or CSS color names
- add_section: {"sectionType": "custom", "title": text, "content": text}
- remove_section: {"sectionId": id}
- update_layout: {"template": one of %s}
- batch_update: {"actions": [<action>, ...]} (at most %d levels deep)

Rules:
- Only use section ids that exist in the document, or that an earlier add_section in the same plan created with an explicit "sectionId".
- Prefer the smallest plan that fulfils the instruction.
- If the instruction cannot be fulfilled, return an empty actions list, explain why in summary, and use confidence "low".
- Write content in the same language as the existing portfolio unless told otherwise.`

// SystemPrompt returns the fixed instructions sent with every request.
func SystemPrompt(maxDepth int) string {
	return fmt.Sprintf(systemPromptTemplate,
		strings.Join(action.ContentFieldNames(), ", "),
		strings.Join(portfolio.KnownTemplates(), ", "),
		maxDepth,
	)
}

// UserPrompt renders the instruction together with the document context.
func UserPrompt(instruction string, doc portfolio.Document, pctx Context) (string, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling document: %w", err)
	}

	var sb strings.Builder
	if pctx.Role != "" {
		fmt.Fprintf(&sb, "[Owner role]\n%s\n\n", pctx.Role)
	}
	fmt.Fprintf(&sb, "[Sections in display order]\n")
	for _, id := range doc.SectionIDs() {
		state := "visible"
		if !doc.IsVisible(id) {
			state = "hidden"
		}
		fmt.Fprintf(&sb, "- %s: %q (%s)\n", id, doc.Title(id), state)
	}
	fmt.Fprintf(&sb, "\n[Current document]\n%s\n\n[Instruction]\n%s", body, strings.TrimSpace(instruction))
	return sb.String(), nil
}
