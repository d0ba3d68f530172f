package models

import "strings"

// Payload is the key-value data threaded through every node of one execution.
type Payload map[string]any

// Clone returns a shallow copy; a nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Merge overwrites keys of p with the keys of result (last write wins, no deep merge).
func (p Payload) Merge(result map[string]any) {
	for k, v := range result {
		p[k] = v
	}
}

// Lookup resolves a key, falling back to a dotted path through nested maps.
func (p Payload) Lookup(key string) (any, bool) {
	if v, ok := p[key]; ok {
		return v, true
	}

	if !strings.Contains(key, ".") {
		return nil, false
	}

	var current any = map[string]any(p)

	for _, part := range strings.Split(key, ".") {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}

			current = v
		case Payload:
			v, ok := m[part]
			if !ok {
				return nil, false
			}

			current = v
		default:
			return nil, false
		}
	}

	return current, true
}
