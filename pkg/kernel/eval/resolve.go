package eval

import (
	"strconv"
	"strings"
)

// Resolve parses input and substitutes every reference token with the value
// it addresses in scope. A reference that addresses nothing resolves to
// undefined: inside an object the key is dropped, inside an array it
// becomes nil, and at the top level Resolve returns nil.
func Resolve(input any, scope *Scope) any {
	v, _ := ResolveNode(Parse(input), scope)
	return v
}

// ResolveNode resolves a parsed tree. The boolean is false when the node
// resolved to undefined.
func ResolveNode(n Node, scope *Scope) (any, bool) {
	switch node := n.(type) {
	case Literal:
		return node.Value, true
	case Reference:
		return resolveReference(node, scope)
	case Object:
		out := make(map[string]any, len(node.Keys))
		for _, k := range node.Keys {
			if v, ok := ResolveNode(node.Fields[k], scope); ok {
				out[k] = v
			}
		}
		return out, true
	case Array:
		out := make([]any, len(node.Items))
		for i, item := range node.Items {
			v, _ := ResolveNode(item, scope)
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func resolveReference(ref Reference, scope *Scope) (any, bool) {
	var (
		base any
		ok   bool
	)
	switch ref.Root {
	case RootPrev:
		base, ok = scope.Prev()
	case RootSteps:
		base, ok = scope.Step(ref.Alias)
	}
	if !ok {
		return nil, false
	}
	return lookup(base, ref.Path)
}

// Lookup follows a dotted field path through a JSON value. Numeric
// segments index arrays. An empty path returns v itself.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	return lookup(v, strings.Split(path, "."))
}

func lookup(v any, path []string) (any, bool) {
	cur := v
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
