package fmf

import (
	"fmt"
	"strings"
)

// inherit produces a child's resolved data from its parent's resolved data
// and its own raw data. Plain keys replace inherited values; keys with a
// trailing '+' combine with the inherited value instead.
func inherit(parent, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(parent)+len(raw))
	for k, v := range parent {
		out[k] = deepCopy(v)
	}

	for k, v := range raw {
		if strings.HasPrefix(k, "/") {
			// Virtual child definition, not node data.
			continue
		}
		if !strings.HasSuffix(k, "+") {
			out[k] = deepCopy(v)
			continue
		}
		key := strings.TrimSuffix(k, "+")
		combined, err := combine(out[key], v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = combined
	}
	return out, nil
}

// combine merges value into base following fmf '+' semantics:
// lists append, strings concatenate, maps update, numbers add.
func combine(base, value any) (any, error) {
	if base == nil {
		return deepCopy(value), nil
	}

	switch b := base.(type) {
	case []any:
		v, ok := value.([]any)
		if !ok {
			// Appending a scalar to a list is allowed.
			return append(copySlice(b), deepCopy(value)), nil
		}
		return append(copySlice(b), copySlice(v)...), nil
	case string:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("cannot append %T to string", value)
		}
		return b + v, nil
	case map[string]any:
		v, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge %T into mapping", value)
		}
		out := copyMap(b)
		for k, val := range v {
			out[k] = deepCopy(val)
		}
		return out, nil
	case int:
		v, ok := value.(int)
		if !ok {
			return nil, fmt.Errorf("cannot add %T to integer", value)
		}
		return b + v, nil
	case float64:
		v, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot add %T to number", value)
		}
		return b + v, nil
	default:
		return nil, fmt.Errorf("cannot append to %T", base)
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		return copySlice(t)
	default:
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func copySlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = deepCopy(v)
	}
	return out
}
