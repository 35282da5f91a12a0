package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned when an encoded action has no type tag.
var ErrMissingType = errors.New("action has no type")

// MaxDecodeDepth bounds batch_update nesting while decoding, well above any
// executable batch depth.
const MaxDecodeDepth = 16

// ErrNestedTooDeep is returned when batch_update nesting exceeds MaxDecodeDepth.
var ErrNestedTooDeep = fmt.Errorf("batch_update nested deeper than %d levels", MaxDecodeDepth)

type envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Reasoning string          `json:"reasoning,omitempty"`
}

// Marshal encodes a as {"type":..., "payload":..., "reasoning":...}.
func Marshal(a Action) ([]byte, error) {
	if a == nil {
		return nil, errors.New("marshaling nil action")
	}
	var payload json.RawMessage
	if u, ok := a.(Unknown); ok {
		payload = u.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
	} else {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s payload: %w", a.Type(), err)
		}
		payload = b
	}
	return json.Marshal(envelope{Type: a.Type(), Payload: payload, Reasoning: a.Rationale()})
}

// Unmarshal decodes one action. The payload may be nested under "payload"
// or given inline next to "type". Unrecognized type tags decode to Unknown.
func Unmarshal(data []byte) (Action, error) {
	return unmarshalAt(data, 1)
}

// unmarshalAt decodes an action found at nesting level depth (1 for a plan's
// own actions).
func unmarshalAt(data []byte, depth int) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("action must be a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("action must be a JSON object")
	}

	var tag string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("action type must be a string: %w", err)
		}
	}
	if tag == "" {
		return nil, ErrMissingType
	}

	var meta Meta
	if raw, ok := fields["reasoning"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &meta.Reasoning); err != nil {
			return nil, fmt.Errorf("action reasoning must be a string: %w", err)
		}
	}

	payload, ok := fields["payload"]
	if !ok || isNull(payload) {
		delete(fields, "type")
		delete(fields, "reasoning")
		inline, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		payload = inline
	}

	t, known := ParseType(tag)
	if !known {
		return Unknown{Meta: meta, Tag: tag, Payload: bytes.Clone(payload)}, nil
	}

	a, err := decodePayload(t, payload, depth)
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return withMeta(a, meta), nil
}

func decodePayload(t Type, payload []byte, depth int) (Action, error) {
	switch t {
	case TypeReorderSections:
		var a ReorderSections
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeToggleSectionVisibility:
		var a ToggleSectionVisibility
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeUpdateSectionTitle:
		var a UpdateSectionTitle
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeUpdateContent:
		var a UpdateContent
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeUpdateTheme:
		var a UpdateTheme
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeAddSection:
		var a AddSection
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeRemoveSection:
		var a RemoveSection
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeUpdateLayout:
		var a UpdateLayout
		err := json.Unmarshal(payload, &a)
		return a, err
	case TypeBatchUpdate:
		if depth >= MaxDecodeDepth {
			return nil, ErrNestedTooDeep
		}
		var body struct {
			Actions json.RawMessage `json:"actions"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		members, err := decodeList(body.Actions, depth+1)
		return BatchUpdate{Actions: members}, err
	}
	return nil, fmt.Errorf("unsupported action type %q", t)
}

func withMeta(a Action, m Meta) Action {
	switch v := a.(type) {
	case ReorderSections:
		v.Meta = m
		return v
	case ToggleSectionVisibility:
		v.Meta = m
		return v
	case UpdateSectionTitle:
		v.Meta = m
		return v
	case UpdateContent:
		v.Meta = m
		return v
	case UpdateTheme:
		v.Meta = m
		return v
	case AddSection:
		v.Meta = m
		return v
	case RemoveSection:
		v.Meta = m
		return v
	case UpdateLayout:
		v.Meta = m
		return v
	case BatchUpdate:
		v.Meta = m
		return v
	}
	return a
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// List is an ordered sequence of actions with envelope JSON encoding.
type List []Action

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, len(l))
	for i, a := range l {
		b, err := Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out[i] = b
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	list, err := decodeList(data, 1)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// decodeList decodes an action array whose members sit at nesting level
// depth. A missing array decodes to nil.
func decodeList(data []byte, depth int) (List, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("actions must be a JSON array: %w", err)
	}
	list := make(List, 0, len(raws))
	for i, raw := range raws {
		a, err := unmarshalAt(raw, depth)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		list = append(list, a)
	}
	return list, nil
}

// WithReasoning returns a copy of a carrying reasoning r.
func WithReasoning(a Action, r string) Action {
	if u, ok := a.(Unknown); ok {
		u.Reasoning = r
		return u
	}
	return withMeta(a, Meta{Reasoning: r})
}
