package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/folio/internal/portfolio"
)

// ContentUpdates maps document field names to their new JSON values. Each
// value is type checked on its own during validation; unknown field names
// are ignored.
type ContentUpdates map[string]json.RawMessage

// ContentFrom encodes a field map into ContentUpdates.
func ContentFrom(fields map[string]any) (ContentUpdates, error) {
	u := make(ContentUpdates, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		u[k] = b
	}
	return u, nil
}

type fieldShape int

const (
	shapeString fieldShape = iota
	shapeStrings
	shapeEntries
)

type contentField struct {
	name     string
	shape    fieldShape
	required []string
}

// contentFields is ordered so updates apply deterministically.
var contentFields = []contentField{
	{name: "heroTitle", shape: shapeString},
	{name: "heroSubtitle", shape: shapeString},
	{name: "aboutText", shape: shapeString},
	{name: "skills", shape: shapeStrings},
	{name: "experience", shape: shapeEntries, required: []string{"title", "company"}},
	{name: "projects", shape: shapeEntries, required: []string{"title"}},
	{name: "testimonials", shape: shapeEntries, required: []string{"name", "quote"}},
	{name: "certificates", shape: shapeEntries, required: []string{"name"}},
}

// ContentFieldNames returns the field names UpdateContent understands.
func ContentFieldNames() []string {
	names := make([]string, len(contentFields))
	for i, f := range contentFields {
		names[i] = f.name
	}
	return names
}

// decodeContent type checks every recognized field of u and returns the
// decoded values keyed by field name. A JSON null clears the field.
func decodeContent(u ContentUpdates) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range contentFields {
		raw, ok := u[f.name]
		if !ok {
			continue
		}
		v, err := decodeField(f, raw)
		if err != nil {
			return nil, err
		}
		out[f.name] = v
	}
	return out, nil
}

func decodeField(f contentField, raw json.RawMessage) (any, error) {
	null := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

	switch f.shape {
	case shapeString:
		if null {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(InvalidAction, "%s must be a string", f.name)
		}
		return s, nil

	case shapeStrings:
		if null {
			return []string(nil), nil
		}
		var ss []string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return nil, invalid(InvalidAction, "%s must be an array of strings", f.name)
		}
		return ss, nil
	}

	if null {
		return decodeEntries(f.name, []byte("[]"))
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, invalid(MalformedEntry, "%s must be an array of objects", f.name)
	}
	for i, e := range entries {
		if e == nil {
			return nil, invalid(MalformedEntry, "%s[%d] must be an object", f.name, i)
		}
		for _, req := range f.required {
			s, ok := e[req].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, invalid(MalformedEntry, "%s[%d]: missing required field %q", f.name, i, req)
			}
		}
	}
	return decodeEntries(f.name, raw)
}

func decodeEntries(name string, raw []byte) (any, error) {
	var (
		v   any
		err error
	)
	switch name {
	case "experience":
		var out []portfolio.Experience
		err = json.Unmarshal(raw, &out)
		v = out
	case "projects":
		var out []portfolio.Project
		err = json.Unmarshal(raw, &out)
		v = out
	case "testimonials":
		var out []portfolio.Testimonial
		err = json.Unmarshal(raw, &out)
		v = out
	case "certificates":
		var out []portfolio.Certificate
		err = json.Unmarshal(raw, &out)
		v = out
	default:
		return nil, fmt.Errorf("no entry type for %s", name)
	}
	if err != nil {
		return nil, invalid(MalformedEntry, "%s: %v", name, err)
	}
	return v, nil
}

func setContent(doc *portfolio.Document, name string, v any) {
	switch name {
	case "heroTitle":
		doc.HeroTitle = v.(string)
	case "heroSubtitle":
		doc.HeroSubtitle = v.(string)
	case "aboutText":
		doc.AboutText = v.(string)
	case "skills":
		doc.Skills = v.([]string)
	case "experience":
		doc.Experience = v.([]portfolio.Experience)
	case "projects":
		doc.Projects = v.([]portfolio.Project)
	case "testimonials":
		doc.Testimonials = v.([]portfolio.Testimonial)
	case "certificates":
		doc.Certificates = v.([]portfolio.Certificate)
	}
}
