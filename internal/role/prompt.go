package role

import (
	"fmt"
	"strings"

	"github.com/kalambet/folio/internal/portfolio"
)

const systemPrompt = `You identify the professional role of a portfolio owner. Your output must be ONLY a single valid JSON object of the form {"role": "<role>"}. Do not include any other text, prose, or markdown.

Rules:
- Use a short job title in English, at most five words (e.g. "backend engineer", "wedding photographer").
- Base the answer only on the portfolio content provided.
- If the role cannot be determined, answer {"role": ""}.`

const maxAboutChars = 600

// BuildPrompt renders the parts of doc that reveal its owner's occupation.
func BuildPrompt(doc portfolio.Document) (system, user string) {
	var sb strings.Builder
	if doc.HeroTitle != "" {
		fmt.Fprintf(&sb, "Headline: %s\n", doc.HeroTitle)
	}
	if doc.HeroSubtitle != "" {
		fmt.Fprintf(&sb, "Tagline: %s\n", doc.HeroSubtitle)
	}
	if about := strings.TrimSpace(doc.AboutText); about != "" {
		if len(about) > maxAboutChars {
			about = about[:maxAboutChars] + "..."
		}
		fmt.Fprintf(&sb, "About: %s\n", about)
	}
	if len(doc.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(doc.Skills, ", "))
	}
	for i, e := range doc.Experience {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "Experience: %s at %s\n", e.Title, e.Company)
	}
	for i, p := range doc.Projects {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "Project: %s\n", p.Title)
	}
	return systemPrompt, sb.String()
}
