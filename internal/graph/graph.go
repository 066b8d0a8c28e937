package graph

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/mastercopy/api"
)

var ErrNotFound = errors.New("node not found")

// Node is one object of a project hierarchy: a folder or an instantiated
// content object. IDs are slash-separated paths from the top of the project.
type Node struct {
	ID       string
	Kind     api.Kind  // api.KindFolder for folders, block/screen for content
	ModTime  time.Time // Creation time
	Data     []byte    // Content copied from the master copy (nil for folders)
	Template string    // Master copy the content was instantiated from
	Source   string    // Library location of that master copy
	Children []string  // Child node IDs in creation order (folders only)
}

// Name returns the last path segment of the node ID.
func (n *Node) Name() string {
	return BaseName(n.ID)
}

// IsFolder reports whether the node can hold children.
func (n *Node) IsFolder() bool {
	return n.Kind == api.KindFolder
}

// ContentSize returns the byte length of this node's content.
func (n *Node) ContentSize() int64 {
	return int64(len(n.Data))
}

// ParentID returns the ID of the node's parent ("" for top-level nodes).
func ParentID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[:i]
	}
	return ""
}

// BaseName returns the last segment of an ID.
func BaseName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Graph is the read side of a project store.
type Graph interface {
	GetNode(id string) (*Node, error)
	// ListChildren returns child IDs in creation order. "" lists the roots.
	ListChildren(id string) ([]string, error)
	ReadContent(id string, buf []byte, offset int64) (int, error)
	// Instances returns the IDs of content nodes created from a master copy.
	Instances(template string) ([]string, error)
}

// Store is a Graph that can be written to.
type Store interface {
	Graph
	// AddRoot adds a top-level node.
	AddRoot(n *Node) error
	// AddNode adds a node and links it to its parent, which must exist.
	AddNode(n *Node) error
	Close() error
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	roots []string

	// Roaring bitmap index: template name → set of node internal IDs.
	templateNodes map[string]*roaring.Bitmap
	nodeIntID     map[string]uint32
	intToNodeID   []string
	nextIntID     uint32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:         make(map[string]*Node),
		roots:         []string{},
		templateNodes: make(map[string]*roaring.Bitmap),
		nodeIntID:     make(map[string]uint32),
	}
}

// AddRoot registers a node as a top-level root and adds it to the store.
func (s *MemoryStore) AddRoot(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	s.indexNode(n)
	for _, r := range s.roots {
		if r == n.ID {
			return nil
		}
	}
	s.roots = append(s.roots, n.ID)
	return nil
}

// AddNode adds a non-root node to the store and appends it to its parent's
// children.
func (s *MemoryStore) AddNode(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[ParentID(n.ID)]
	if !ok {
		return ErrNotFound
	}
	s.nodes[n.ID] = n
	s.indexNode(n)
	for _, c := range parent.Children {
		if c == n.ID {
			return nil
		}
	}
	parent.Children = append(parent.Children, n.ID)
	return nil
}

// indexNode registers content nodes in the template bitmap index.
// Must be called with s.mu held.
func (s *MemoryStore) indexNode(n *Node) {
	if n.Template == "" {
		return
	}
	intID, ok := s.nodeIntID[n.ID]
	if !ok {
		intID = s.nextIntID
		s.nextIntID++
		s.nodeIntID[n.ID] = intID
		for uint32(len(s.intToNodeID)) <= intID {
			s.intToNodeID = append(s.intToNodeID, "")
		}
		s.intToNodeID[intID] = n.ID
	}
	bm, exists := s.templateNodes[n.Template]
	if !exists {
		bm = roaring.New()
		s.templateNodes[n.Template] = bm
	}
	bm.Add(intID)
}

// Instances implements Graph.
func (s *MemoryStore) Instances(template string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.templateNodes[template]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		intID := it.Next()
		if int(intID) < len(s.intToNodeID) && s.intToNodeID[intID] != "" {
			ids = append(ids, s.intToNodeID[intID])
		}
	}
	return ids, nil
}

// GetNode implements Graph.
func (s *MemoryStore) GetNode(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id = strings.TrimPrefix(id, "/")
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListChildren implements Graph.
func (s *MemoryStore) ListChildren(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" || id == "/" {
		return append([]string(nil), s.roots...), nil
	}
	id = strings.TrimPrefix(id, "/")

	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), n.Children...), nil
}

// ReadContent implements Graph.
func (s *MemoryStore) ReadContent(id string, buf []byte, offset int64) (int, error) {
	node, err := s.GetNode(id)
	if err != nil {
		return 0, err
	}
	return copyAt(node.Data, buf, offset), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error { return nil }

// copyAt copies data[offset:] into buf. Offsets outside data copy nothing.
func copyAt(data, buf []byte, offset int64) int {
	if offset < 0 || offset >= int64(len(data)) {
		return 0
	}
	end := offset + int64(len(buf))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return copy(buf, data[offset:end])
}

var _ Store = (*MemoryStore)(nil)
