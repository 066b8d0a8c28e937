package api

import (
	"fmt"
	"strings"
)

// Kind classifies a tree node.
// The numeric values are the "type" integers of the JSON document.
type Kind int

const (
	// KindFolder is a structural node that becomes a container in the project.
	KindFolder Kind = 1
	// KindBlock is a PLC program block instantiated from a master copy.
	KindBlock Kind = 2
	// KindScreen is an HMI screen instantiated from a master copy.
	KindScreen Kind = 3
)

// Valid reports whether k is one of the known node kinds.
func (k Kind) Valid() bool {
	return k == KindFolder || k == KindBlock || k == KindScreen
}

// IsContent reports whether k is a leaf content kind.
func (k Kind) IsContent() bool {
	return k == KindBlock || k == KindScreen
}

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindBlock:
		return "block"
	case KindScreen:
		return "screen"
	case 0:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a kind name ("folder", "block", "screen") to a Kind.
// The empty string and "any" yield 0.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return 0, nil
	case "folder":
		return KindFolder, nil
	case "block", "plc":
		return KindBlock, nil
	case "screen", "hmi":
		return KindScreen, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// TreeNode is one entry of the folder tree to be materialized.
// It is immutable once parsed.
type TreeNode struct {
	// Name of the folder, or of the master copy for content nodes.
	Name string `json:"name"`
	// Kind selects folder or content behavior.
	Kind Kind `json:"type"`
	// Children in document order. Content nodes usually have none.
	Children []*TreeNode `json:"subhmifolderblocks"`
}

// Walk visits n and its descendants in pre-order, passing the depth of each
// node (0 for n). Returning false from fn skips the node's children.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(*TreeNode, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Count returns the number of nodes per kind in the subtree rooted at n.
func (n *TreeNode) Count() map[Kind]int {
	counts := make(map[Kind]int)
	n.Walk(func(node *TreeNode, _ int) bool {
		counts[node.Kind]++
		return true
	})
	return counts
}
