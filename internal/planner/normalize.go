package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/folio/internal/action"
)

// extractJSON returns the outermost JSON object in s, dropping markdown
// fences and any prose the model wrapped around it.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// stripHTML drops markup from model-written prose, keeping text content.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.Join(strings.Fields(sb.String()), " ")
			}
			return strings.TrimSpace(s)
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	return bytes.Equal(name, []byte("script")) || bytes.Equal(name, []byte("style"))
}

// rawPlan mirrors the response shape with pointer fields so missing keys
// can be told apart from empty ones.
type rawPlan struct {
	Summary    *string          `json:"summary"`
	Actions    *json.RawMessage `json:"actions"`
	Confidence *string          `json:"confidence"`
}

// decodePlan parses a model reply into a plan. Anything that does not match
// the response shape is an invalid_response failure.
func decodePlan(reply string) (action.Plan, error) {
	obj, ok := extractJSON(reply)
	if !ok {
		return action.Plan{}, invalidResponse("response contains no JSON object")
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return action.Plan{}, invalidResponse("response is not valid JSON: %v", err)
	}
	if raw.Actions == nil {
		return action.Plan{}, invalidResponse("response has no actions")
	}
	if raw.Confidence == nil {
		return action.Plan{}, invalidResponse("response has no confidence")
	}
	conf, ok := action.ParseConfidence(*raw.Confidence)
	if !ok {
		return action.Plan{}, invalidResponse("unknown confidence %q", *raw.Confidence)
	}

	var actions action.List
	if err := json.Unmarshal(*raw.Actions, &actions); err != nil {
		return action.Plan{}, invalidResponse("decoding actions: %v", err)
	}

	plan := action.Plan{Actions: sanitize(actions), Confidence: conf}
	if raw.Summary != nil {
		plan.Summary = stripHTML(*raw.Summary)
	}
	return plan, nil
}

func sanitize(list action.List) action.List {
	out := make(action.List, len(list))
	for i, a := range list {
		if b, ok := a.(action.BatchUpdate); ok {
			b.Actions = sanitize(b.Actions)
			a = b
		}
		if r := a.Rationale(); r != "" {
			a = action.WithReasoning(a, stripHTML(r))
		}
		out[i] = a
	}
	return out
}
