package materialize

import (
	"fmt"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/project"
	"go.uber.org/zap"
)

// Report summarizes one materialization. On failure it holds the counts up
// to the failing node.
type Report struct {
	Folders      int
	Instantiated int
	// Missing lists tree paths of content nodes with no matching master copy.
	Missing []string
	// Ambiguous lists tree paths whose name matched more than one master copy.
	Ambiguous []string
	// Skipped counts content nodes of a kind the project does not hold.
	Skipped int
}

// Engine reproduces a tree inside a project. It carries every handle the
// walk needs, so one Engine can be reused across targets and runs.
type Engine struct {
	Project project.Project
	Catalog catalog.Folder
	Logger  *zap.Logger

	// MergeRoot maps a folder root onto the starting container instead of
	// creating a subfolder for it.
	MergeRoot bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.Logger = l }
}

// WithMergeRoot sets Engine.MergeRoot.
func WithMergeRoot(merge bool) Option {
	return func(e *Engine) { e.MergeRoot = merge }
}

// NewEngine returns an Engine writing into p from lib.
func NewEngine(p project.Project, lib catalog.Folder, opts ...Option) *Engine {
	e := &Engine{
		Project: p,
		Catalog: lib,
		Logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Materialize walks root depth first and creates its folders and content in
// the project. A nil target means the project's top level.
//
// Container errors are returned as soon as they occur; everything created
// before the failure stays in the project.
func (e *Engine) Materialize(root *api.TreeNode, target project.Container) (*Report, error) {
	r := &Report{}
	if root == nil {
		return r, nil
	}

	current := target
	children := []*api.TreeNode{root}
	path := ""
	if e.MergeRoot && root.Kind == api.KindFolder {
		// The root stands for the starting container itself.
		children = root.Children
		path = root.Name
		e.Logger.Debug("merging root folder", zap.String("name", root.Name))
	}

	for _, child := range children {
		if err := e.processNode(child, current, joinPath(path, child.Name), r); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (e *Engine) processNode(node *api.TreeNode, target project.Container, treePath string, r *Report) error {
	current := target

	switch {
	case node.Kind == api.KindFolder:
		sub, err := e.resolve(target).CreateSubfolder(node.Name)
		if err != nil {
			return fmt.Errorf("create folder %s: %w", treePath, err)
		}
		e.Logger.Debug("created folder", zap.String("tree", treePath), zap.String("project", sub.Path()))
		r.Folders++
		current = sub

	case node.Kind.IsContent():
		if !project.Accepts(e.Project, node.Kind) {
			e.Logger.Debug("skipping content for other software",
				zap.String("tree", treePath), zap.Stringer("kind", node.Kind))
			r.Skipped++
			break
		}
		if err := e.instantiate(node, target, treePath, r); err != nil {
			return err
		}
	}

	// Children of content nodes land next to the content, in target.
	for _, child := range node.Children {
		if err := e.processNode(child, current, joinPath(treePath, child.Name), r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) instantiate(node *api.TreeNode, target project.Container, treePath string, r *Report) error {
	matches := catalog.Find(e.Catalog, node.Name)
	if len(matches) == 0 {
		// A missing master copy is not an error; the node is left out.
		e.Logger.Warn("no master copy found", zap.String("tree", treePath), zap.String("name", node.Name))
		r.Missing = append(r.Missing, treePath)
		return nil
	}
	if len(matches) > 1 {
		e.Logger.Warn("master copy name is ambiguous",
			zap.String("tree", treePath), zap.Int("matches", len(matches)))
		r.Ambiguous = append(r.Ambiguous, treePath)
	}

	dest := e.resolve(target)
	for _, m := range matches {
		if err := dest.Instantiate(m); err != nil {
			return fmt.Errorf("instantiate %s: %w", treePath, err)
		}
		e.Logger.Debug("instantiated master copy",
			zap.String("tree", treePath), zap.String("project", dest.Path()), zap.String("source", m.Source))
		r.Instantiated++
	}
	return nil
}

// resolve maps the nil target onto the project's top level.
func (e *Engine) resolve(target project.Container) project.Container {
	if target == nil {
		return e.Project.Root()
	}
	return target
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
