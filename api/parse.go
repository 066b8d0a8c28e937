package api

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// JSON field names of the tree document.
const (
	fieldName     = "name"
	fieldType     = "type"
	fieldChildren = "subhmifolderblocks"
)

// SchemaError reports a tree document that does not match the expected shape.
// Path is a JSONPath to the offending value.
type SchemaError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema error at %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("schema error at %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ParseTree decodes a tree document. The whole document is validated before
// anything is returned, so a non-nil tree is always well formed.
func ParseTree(data []byte) (*TreeNode, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, &SchemaError{Path: "$", Reason: "invalid json", Err: err}
	}
	return decodeNode(doc, "$")
}

// ParseTreeAt decodes the first value selected by a JSONPath expression.
// It lets one document carry several trees, e.g. {"plc": {...}, "hmi": {...}}.
func ParseTreeAt(data []byte, selector string) (*TreeNode, error) {
	if selector == "" || selector == "$" {
		return ParseTree(data)
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, &SchemaError{Path: "$", Reason: "invalid json", Err: err}
	}
	results := x.Get(doc)
	if len(results) == 0 {
		return nil, &SchemaError{Path: selector, Reason: "selector matched nothing"}
	}
	return decodeNode(results[0], selector)
}

func decodeNode(v any, path string) (*TreeNode, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: path, Reason: fmt.Sprintf("expected object, got %s", jsonType(v))}
	}

	rawName, ok := obj[fieldName]
	if !ok {
		return nil, &SchemaError{Path: path + "." + fieldName, Reason: "missing required field"}
	}
	name, ok := rawName.(string)
	if !ok {
		return nil, &SchemaError{Path: path + "." + fieldName, Reason: fmt.Sprintf("expected string, got %s", jsonType(rawName))}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &SchemaError{Path: path + "." + fieldName, Reason: "name must not be empty"}
	}

	rawType, ok := obj[fieldType]
	if !ok {
		return nil, &SchemaError{Path: path + "." + fieldType, Reason: "missing required field"}
	}
	kind, err := decodeKind(rawType)
	if err != nil {
		return nil, &SchemaError{Path: path + "." + fieldType, Reason: err.Error()}
	}

	node := &TreeNode{Name: name, Kind: kind}

	rawChildren, ok := obj[fieldChildren]
	if !ok || rawChildren == nil {
		return node, nil
	}
	list, ok := rawChildren.([]any)
	if !ok {
		return nil, &SchemaError{Path: path + "." + fieldChildren, Reason: fmt.Sprintf("expected array, got %s", jsonType(rawChildren))}
	}
	node.Children = make([]*TreeNode, 0, len(list))
	for i, item := range list {
		child, err := decodeNode(item, fmt.Sprintf("%s.%s[%d]", path, fieldChildren, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func decodeKind(v any) (Kind, error) {
	var n int64
	switch t := v.(type) {
	case int64:
		n = t
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		n = int64(t)
	default:
		return 0, fmt.Errorf("expected integer, got %s", jsonType(v))
	}
	k := Kind(n)
	if !k.Valid() {
		return 0, fmt.Errorf("unknown node type %d", n)
	}
	return k, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int64, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
