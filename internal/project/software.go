package project

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/graph"
)

// Top-level container names, one per software kind.
const (
	BlocksRoot  = "Program blocks"
	ScreensRoot = "Screens"
)

// RootName returns the top-level container name for a software kind.
func RootName(kind api.Kind) (string, error) {
	switch kind {
	case api.KindBlock:
		return BlocksRoot, nil
	case api.KindScreen:
		return ScreensRoot, nil
	}
	return "", fmt.Errorf("no software for kind %s", kind)
}

// Software is a Project backed by a graph.Store. Several Software values may
// share one store (a PLC and an HMI in the same project file).
type Software struct {
	mu    sync.Mutex
	store graph.Store
	kind  api.Kind
	root  string
	now   func() time.Time
}

// NewSoftware opens the software of the given kind inside store, creating
// its top-level container on first use.
func NewSoftware(store graph.Store, kind api.Kind) (*Software, error) {
	root, err := RootName(kind)
	if err != nil {
		return nil, err
	}
	if _, err := store.GetNode(root); errors.Is(err, graph.ErrNotFound) {
		if err := store.AddRoot(&graph.Node{ID: root, Kind: api.KindFolder, ModTime: time.Now()}); err != nil {
			return nil, fmt.Errorf("create %s: %w", root, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", root, err)
	}
	return &Software{store: store, kind: kind, root: root, now: time.Now}, nil
}

// NewMemory returns a Software backed by a fresh in-memory store.
func NewMemory(kind api.Kind) (*Software, error) {
	return NewSoftware(graph.NewMemoryStore(), kind)
}

// Root implements Project.
func (s *Software) Root() Container {
	return &container{sw: s, id: s.root}
}

// Kind implements Project.
func (s *Software) Kind() api.Kind {
	return s.kind
}

// Store exposes the backing store for reads.
func (s *Software) Store() graph.Store {
	return s.store
}

// Close closes the backing store.
func (s *Software) Close() error {
	return s.store.Close()
}

// container is a folder node of a Software. Paths returned to callers are
// relative to the software root; ids are full store IDs.
type container struct {
	sw *Software
	id string
}

func (c *container) Name() string {
	if c.id == c.sw.root {
		return ""
	}
	return graph.BaseName(c.id)
}

func (c *container) Path() string {
	if c.id == c.sw.root {
		return ""
	}
	return c.id[len(c.sw.root)+1:]
}

// CreateSubfolder implements Container.
func (c *container) CreateSubfolder(name string) (Container, error) {
	c.sw.mu.Lock()
	defer c.sw.mu.Unlock()

	childID, err := c.checkChild(name)
	if err != nil {
		return nil, err
	}
	node := &graph.Node{ID: childID, Kind: api.KindFolder, ModTime: c.sw.now()}
	if err := c.sw.store.AddNode(node); err != nil {
		return nil, c.storeError(name, err)
	}
	return &container{sw: c.sw, id: childID}, nil
}

// Instantiate implements Container.
func (c *container) Instantiate(t catalog.Template) error {
	c.sw.mu.Lock()
	defer c.sw.mu.Unlock()

	if err := checkTemplate(c.Path(), c.sw.kind, t); err != nil {
		return err
	}
	childID, err := c.checkChild(t.Name)
	if err != nil {
		return err
	}
	node := &graph.Node{
		ID:       childID,
		Kind:     c.sw.kind,
		ModTime:  c.sw.now(),
		Data:     append([]byte(nil), t.Content...),
		Template: t.Name,
		Source:   t.Source,
	}
	if err := c.sw.store.AddNode(node); err != nil {
		return c.storeError(t.Name, err)
	}
	return nil
}

// checkChild validates that name can be created under c and returns its ID.
// Must be called with c.sw.mu held.
func (c *container) checkChild(name string) (string, error) {
	if err := checkName(c.Path(), name); err != nil {
		return "", err
	}
	parent, err := c.sw.store.GetNode(c.id)
	if errors.Is(err, graph.ErrNotFound) {
		return "", newError(InvalidParent, c.Path(), name, errors.New("container no longer exists"))
	}
	if err != nil {
		return "", err
	}
	if !parent.IsFolder() {
		return "", newError(InvalidParent, c.Path(), name, fmt.Errorf("%s is not a folder", parent.Kind))
	}

	childID := c.id + "/" + name
	if _, err := c.sw.store.GetNode(childID); err == nil {
		return "", newError(DuplicateName, c.Path(), name, nil)
	} else if !errors.Is(err, graph.ErrNotFound) {
		return "", err
	}
	return childID, nil
}

func (c *container) storeError(name string, err error) error {
	if errors.Is(err, graph.ErrNotFound) {
		return newError(InvalidParent, c.Path(), name, err)
	}
	return fmt.Errorf("create %q in %q: %w", name, c.Path(), err)
}

var (
	_ Project   = (*Software)(nil)
	_ Container = (*container)(nil)
)
