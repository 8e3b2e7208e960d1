// Package params builds nested API parameters from flat command-line tokens.
//
// Tokens use the pseudo-array syntax shared by interactive and scripted mode:
//
//	flag          boolean true
//	!flag         boolean false
//	name=value    string
//	name:=json    parsed JSON (objects become nested maps)
//	a.b.c=value   nested maps created on demand
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/studiowebux/restsh/internal/clierr"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindMap Kind = iota
	KindString
	KindBool
	KindNumber
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindJSON:
		return "json"
	}
	return "unknown"
}

// Node is either a scalar or a mapping from key to Node. The zero value is
// an empty map, ready to use.
type Node struct {
	kind     Kind
	text     string // KindString value, KindNumber literal
	boolean  bool
	raw      any // KindJSON value (arrays, null)
	children map[string]*Node
}

// NewTree returns an empty map node, the root of a parameter tree.
func NewTree() *Node {
	return &Node{kind: KindMap, children: make(map[string]*Node)}
}

// String returns a string scalar.
func String(s string) *Node { return &Node{kind: KindString, text: s} }

// Bool returns a boolean scalar.
func Bool(b bool) *Node { return &Node{kind: KindBool, boolean: b} }

// Number returns a numeric scalar holding the literal n.
func Number(n json.Number) *Node { return &Node{kind: KindNumber, text: n.String()} }

// JSON returns a scalar holding an arbitrary decoded JSON value.
func JSON(v any) *Node { return &Node{kind: KindJSON, raw: v} }

// FromValue converts a decoded JSON value into a Node. Objects become maps,
// strings, booleans and numbers become the matching scalars, and anything
// else (arrays, null) is kept as KindJSON.
func FromValue(v any) *Node {
	switch val := v.(type) {
	case map[string]any:
		tree := NewTree()
		for key, child := range val {
			tree.children[key] = FromValue(child)
		}
		return tree
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case json.Number:
		return Number(val)
	case float64:
		return Number(json.Number(strconv.FormatFloat(val, 'f', -1, 64)))
	case int:
		return Number(json.Number(strconv.Itoa(val)))
	default:
		return JSON(val)
	}
}

// FromJSON decodes a JSON object into a tree.
func FromJSON(data []byte) (*Node, error) {
	v, err := decode(data)
	if err != nil {
		return nil, clierr.Usage("invalid JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, clierr.Usage("invalid JSON: expected an object of parameters")
	}
	return FromValue(obj), nil
}

// Kind returns the variant tag.
func (n *Node) Kind() Kind { return n.kind }

// Len returns the number of keys of a map node, 0 for scalars.
func (n *Node) Len() int { return len(n.children) }

// IsEmpty reports whether n is nil or a map without keys.
func (n *Node) IsEmpty() bool {
	return n == nil || (n.kind == KindMap && len(n.children) == 0)
}

// Get returns the child stored under key.
func (n *Node) Get(key string) (*Node, bool) {
	child, ok := n.children[key]
	return child, ok
}

// Keys returns the map keys in sorted order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.children))
	for key := range n.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Assign parses one parameter token and stores it in the tree.
func (n *Node) Assign(token string) error {
	name, value, err := parseToken(token)
	if err != nil {
		return err
	}
	path := strings.Split(name, ".")
	for _, segment := range path {
		if segment == "" {
			return clierr.Usage("invalid parameter name %q", name)
		}
	}
	return n.Set(path, value)
}

// Set stores value under the dotted path. Intermediate maps are created
// when missing. Storing a map onto an existing map merges the two; turning
// a scalar into a map, or a map into a scalar, is an error.
func (n *Node) Set(path []string, value *Node) error {
	if n.kind != KindMap {
		panic("params: Set called on a scalar node")
	}
	if len(path) == 0 {
		return clierr.Usage("empty parameter name")
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}

	cur := n
	for i, segment := range path[:len(path)-1] {
		child, ok := cur.children[segment]
		if !ok {
			child = NewTree()
			cur.children[segment] = child
		} else if child.kind != KindMap {
			return clierr.Usage("parameter %q already holds a %s value",
				strings.Join(path[:i+1], "."), child.kind)
		}
		cur = child
	}

	key := path[len(path)-1]
	existing, ok := cur.children[key]
	if !ok {
		cur.children[key] = value
		return nil
	}

	switch {
	case existing.kind == KindMap && value.kind == KindMap:
		for _, childKey := range value.Keys() {
			if err := existing.Set([]string{childKey}, value.children[childKey]); err != nil {
				return clierr.Usage("parameter %q: %w", strings.Join(path, "."), err)
			}
		}
		return nil
	case existing.kind == KindMap:
		return clierr.Usage("parameter %q is a nested map and cannot be set to a %s",
			strings.Join(path, "."), value.kind)
	case value.kind == KindMap:
		return clierr.Usage("parameter %q already holds a %s value",
			strings.Join(path, "."), existing.kind)
	}

	cur.children[key] = value
	return nil
}

// Value converts the tree to plain Go values suitable for encoding/json.
// Numbers are returned as json.Number.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindMap:
		out := make(map[string]any, len(n.children))
		for key, child := range n.children {
			out[key] = child.Value()
		}
		return out
	case KindString:
		return n.text
	case KindBool:
		return n.boolean
	case KindNumber:
		return json.Number(n.text)
	default:
		return n.raw
	}
}

// MarshalJSON encodes the tree.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Value())
}

// UnmarshalJSON replaces n with the decoded value.
func (n *Node) UnmarshalJSON(data []byte) error {
	v, err := decode(data)
	if err != nil {
		return err
	}
	*n = *FromValue(v)
	return nil
}

// Pair is one name/value entry of a flattened tree.
type Pair struct {
	Name  string
	Value string
}

// QueryPairs flattens the tree into sorted name/value pairs. Nested maps
// use dotted names, mirroring the syntax that built them.
func (n *Node) QueryPairs() []Pair {
	var pairs []Pair
	n.flatten("", &pairs)
	return pairs
}

func (n *Node) flatten(prefix string, pairs *[]Pair) {
	if n == nil {
		return
	}
	if n.kind != KindMap {
		*pairs = append(*pairs, Pair{Name: prefix, Value: n.scalarText()})
		return
	}
	for _, key := range n.Keys() {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		n.children[key].flatten(name, pairs)
	}
}

func (n *Node) scalarText() string {
	switch n.kind {
	case KindString, KindNumber:
		return n.text
	case KindBool:
		return strconv.FormatBool(n.boolean)
	default:
		data, err := json.Marshal(n.raw)
		if err != nil {
			return fmt.Sprint(n.raw)
		}
		return string(data)
	}
}

func parseToken(token string) (string, *Node, error) {
	if token == "" {
		return "", nil, clierr.Usage("empty parameter")
	}

	name, value, hasValue := strings.Cut(token, "=")
	if !hasValue {
		if strings.HasPrefix(name, "!") {
			name = strings.TrimPrefix(name, "!")
			if name == "" {
				return "", nil, clierr.Usage("invalid parameter %q", token)
			}
			return name, Bool(false), nil
		}
		return name, Bool(true), nil
	}

	if strings.HasSuffix(name, ":") {
		name = strings.TrimSuffix(name, ":")
		decoded, err := decode([]byte(value))
		if err != nil {
			return "", nil, clierr.Usage("invalid JSON value for %q: %w", name, err)
		}
		return name, FromValue(decoded), nil
	}
	return name, String(value), nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}
