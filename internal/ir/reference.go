package ir

import (
	"fmt"
	"strings"
)

// refScheme marks a reference in textual attribute values:
// ref://<kind>.<name>/<attribute path>, e.g. ref://aws_vpc.main/id.
const refScheme = "ref://"

// Reference is a directed edge from a dependent resource's attribute to a
// producer resource's output attribute. Inside an attribute tree a node is
// either a literal value or a Reference; a Reference stays pending until the
// producer's action has committed, at which point the executor substitutes
// the producer's output.
type Reference struct {
	Target string // producer address, "kind.name"
	Path   string // attribute path on the producer, "a.b.c"
}

func (r Reference) String() string {
	return refScheme + r.Target + "/" + r.Path
}

// ParseReference parses a ref:// marker string. The second return value
// reports whether s was a reference at all.
func ParseReference(s string) (Reference, bool) {
	if !strings.HasPrefix(s, refScheme) {
		return Reference{}, false
	}
	rest := s[len(refScheme):]
	target, path, ok := strings.Cut(rest, "/")
	if !ok || target == "" || path == "" {
		return Reference{}, false
	}
	if !strings.Contains(target, ".") {
		return Reference{}, false
	}
	return Reference{Target: target, Path: path}, true
}

// ParseAttributes rewrites every ref:// marker string in an attribute tree
// into a Reference value. Malformed markers are left as plain strings; the
// graph builder only sees well-formed references.
func ParseAttributes(v any) any {
	switch val := v.(type) {
	case string:
		if ref, ok := ParseReference(val); ok {
			return ref
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ParseAttributes(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = ParseAttributes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ParseAttributes(item)
		}
		return out
	default:
		return val
	}
}

// References collects every Reference in an attribute tree.
func References(v any) []Reference {
	var refs []Reference
	walkRefs(v, &refs)
	return refs
}

func walkRefs(v any, refs *[]Reference) {
	switch val := v.(type) {
	case Reference:
		*refs = append(*refs, val)
	case map[string]any:
		for _, item := range val {
			walkRefs(item, refs)
		}
	case []any:
		for _, item := range val {
			walkRefs(item, refs)
		}
	}
}

// HasPendingRef reports whether an attribute tree still contains an
// unsubstituted Reference.
func HasPendingRef(v any) bool {
	switch val := v.(type) {
	case Reference:
		return true
	case map[string]any:
		for _, item := range val {
			if HasPendingRef(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if HasPendingRef(item) {
				return true
			}
		}
	}
	return false
}

// AttrPath walks a dotted path ("a.b.c") into an attribute tree.
func AttrPath(attrs map[string]any, path string) (any, bool) {
	cur := any(attrs)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
