// Package fieldpath resolves dot-separated paths such as "order.total"
// against JSON-like records.
package fieldpath

import "strings"

// Lookup walks record one segment at a time. It reports false when any
// segment is missing, when an intermediate value is not an object, or when
// the leaf is nil.
func Lookup(record map[string]any, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}
	var current any = record
	for _, part := range strings.Split(path, ".") {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, obj != nil
	case map[string]string:
		out := make(map[string]any, len(obj))
		for k, s := range obj {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}
