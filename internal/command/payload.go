// ABOUTME: Loosely-typed payload accessors for command parameters.
// ABOUTME: Payloads travel as raw JSON; fields are read with defaults.

package command

import "encoding/json"

// Payload is the decoded form of a command's parameter object. Commands
// carry parameters as an opaque JSON object end to end; only the fake
// agent and a few validation paths ever look inside.
type Payload map[string]any

// ParsePayload decodes raw into a Payload. A nil or empty raw is a valid
// empty payload, not an error.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// String returns the string value at key, or def if absent or not a string.
func (p Payload) String(key, def string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Int returns the integer value at key, or def if absent. JSON numbers
// decode as float64, so that case carries the weight.
func (p Payload) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// Bool returns the boolean value at key, or def if absent or not a bool.
func (p Payload) Bool(key string, def bool) bool {
	if v, ok := p[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Strings returns the string-slice value at key, dropping any non-string
// elements. Returns nil if the key is absent or not an array.
func (p Payload) Strings(key string) []string {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
