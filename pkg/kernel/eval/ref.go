// Package eval implements reference resolution and run conditions for
// pipeline steps.
//
// A step input is parsed once into a small tree of Nodes: Literal values,
// Reference tokens ($prev..., $steps.<alias>...), and the Object/Array
// containers that hold them. Resolution is then a pure transform of that
// tree against a Scope built from earlier step outputs.
package eval

import (
	"reflect"
	"sort"
	"strings"
)

// Node is a parsed input value.
type Node interface {
	isNode()
}

// Literal is a value that passes through resolution unchanged.
type Literal struct {
	Value any
}

// Root names the scope slot a reference starts from.
type Root int

const (
	// RootPrev addresses the most recently attempted step.
	RootPrev Root = iota
	// RootSteps addresses an aliased step.
	RootSteps
)

// Reference is a parsed reference token.
type Reference struct {
	Root  Root
	Alias string   // set when Root is RootSteps
	Path  []string // field path below the root
	Raw   string
}

// Object is a JSON object whose values are nodes. Keys keep sorted order so
// resolution is deterministic.
type Object struct {
	Keys   []string
	Fields map[string]Node
}

// Array is a JSON array of nodes.
type Array struct {
	Items []Node
}

func (Literal) isNode()   {}
func (Reference) isNode() {}
func (Object) isNode()    {}
func (Array) isNode()     {}

const (
	prevToken  = "$prev"
	stepsToken = "$steps"
)

// Parse converts a value into a Node tree. Typed Go containers such as
// map[string]string, []string or structs are read in their JSON form, so
// reference tokens inside them are found like in decoded documents.
func Parse(v any) Node {
	switch val := v.(type) {
	case string:
		if ref, ok := ParseReference(val); ok {
			return ref
		}
		return Literal{Value: val}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(map[string]Node, len(val))
		for _, k := range keys {
			fields[k] = Parse(val[k])
		}
		return Object{Keys: keys, Fields: fields}
	case []any:
		items := make([]Node, len(val))
		for i, item := range val {
			items[i] = Parse(item)
		}
		return Array{Items: items}
	default:
		if g, ok := generic(v); ok {
			return Parse(g)
		}
		return Literal{Value: v}
	}
}

// generic returns the JSON form of a typed container or string type. It
// reports false for scalars and for values that do not encode as JSON.
func generic(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.String:
	default:
		return nil, false
	}
	n, err := Normalize(v)
	if err != nil {
		return nil, false
	}
	switch n.(type) {
	case map[string]any, []any, string:
		return n, true
	}
	return nil, false
}

// ParseReference parses s as a reference token. Strings that do not match
// the grammar are not references:
//
//	$prev
//	$prev.<field>[.<field>...]
//	$steps.<alias>
//	$steps.<alias>.<field>[.<field>...]
func ParseReference(s string) (Reference, bool) {
	if !strings.HasPrefix(s, "$") {
		return Reference{}, false
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" {
			return Reference{}, false
		}
	}
	switch segments[0] {
	case prevToken:
		return Reference{Root: RootPrev, Path: segments[1:], Raw: s}, true
	case stepsToken:
		if len(segments) < 2 {
			return Reference{}, false
		}
		return Reference{Root: RootSteps, Alias: segments[1], Path: segments[2:], Raw: s}, true
	default:
		return Reference{}, false
	}
}

// References returns every reference token in the tree, in resolution order.
func References(n Node) []Reference {
	var refs []Reference
	walk(n, func(r Reference) { refs = append(refs, r) })
	return refs
}

func walk(n Node, fn func(Reference)) {
	switch node := n.(type) {
	case Reference:
		fn(node)
	case Object:
		for _, k := range node.Keys {
			walk(node.Fields[k], fn)
		}
	case Array:
		for _, item := range node.Items {
			walk(item, fn)
		}
	}
}
