package core

import (
	"encoding/json"
	"fmt"
)

// Patch is a server-returned partial entity keyed by top-level JSON field.
type Patch map[string]json.RawMessage

// PatchOf encodes v as a Patch holding every field v marshals.
func PatchOf(v any) (Patch, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return p, nil
}

// ID returns the "id" field of the patch, or "" when it is missing or not a string.
func (p Patch) ID() string {
	raw, ok := p["id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// ApplyPatch shallow-merges p over base: every top-level key in p replaces the
// corresponding field of base, all other fields are kept.
func ApplyPatch[T any](base T, p Patch) (T, error) {
	if len(p) == 0 {
		return base, nil
	}
	data, err := json.Marshal(base)
	if err != nil {
		return base, fmt.Errorf("marshal base: %w", err)
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return base, fmt.Errorf("decode base: %w", err)
	}
	for k, v := range p {
		merged[k] = v
	}
	data, err = json.Marshal(merged)
	if err != nil {
		return base, fmt.Errorf("marshal merged: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("decode merged: %w", err)
	}
	return out, nil
}
