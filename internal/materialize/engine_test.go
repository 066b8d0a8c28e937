package materialize

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/graph"
	"github.com/agentic-research/mastercopy/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Project that logs every container call in order.
type recorder struct {
	kind  api.Kind
	calls []string
	// failOn makes the named create/instantiate fail with DuplicateName.
	failOn string
}

func newRecorder(kind api.Kind) *recorder { return &recorder{kind: kind} }

func (r *recorder) Root() project.Container { return &recContainer{r: r} }
func (r *recorder) Kind() api.Kind          { return r.kind }
func (r *recorder) Close() error            { return nil }

type recContainer struct {
	r    *recorder
	path string
}

func (c *recContainer) Name() string { return graph.BaseName(c.path) }
func (c *recContainer) Path() string { return c.path }

func (c *recContainer) CreateSubfolder(name string) (project.Container, error) {
	c.r.calls = append(c.r.calls, fmt.Sprintf("create %s|%s", c.path, name))
	if name == c.r.failOn {
		return nil, &project.MaterializationError{Kind: project.DuplicateName, Path: c.path, Name: name}
	}
	return &recContainer{r: c.r, path: joinPath(c.path, name)}, nil
}

func (c *recContainer) Instantiate(t catalog.Template) error {
	c.r.calls = append(c.r.calls, fmt.Sprintf("instantiate %s|%s", c.path, t.Name))
	if t.Name == c.r.failOn {
		return &project.MaterializationError{Kind: project.IncompatibleTemplate, Path: c.path, Name: t.Name}
	}
	return nil
}

func folder(name string, children ...*api.TreeNode) *api.TreeNode {
	return &api.TreeNode{Name: name, Kind: api.KindFolder, Children: children}
}

func block(name string, children ...*api.TreeNode) *api.TreeNode {
	return &api.TreeNode{Name: name, Kind: api.KindBlock, Children: children}
}

func screen(name string) *api.TreeNode {
	return &api.TreeNode{Name: name, Kind: api.KindScreen}
}

func instantiations(calls []string) []string {
	var out []string
	for _, c := range calls {
		if len(c) > 12 && c[:12] == "instantiate " {
			out = append(out, c)
		}
	}
	return out
}

func TestEngine_FolderOnlyTreesAreIsomorphic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var gen func(name string, depth int) *api.TreeNode
	gen = func(name string, depth int) *api.TreeNode {
		n := folder(name)
		if depth == 0 {
			return n
		}
		for i := rng.Intn(4); i > 0; i-- {
			n.Children = append(n.Children, gen(fmt.Sprintf("%s_%d", name, len(n.Children)), depth-1))
		}
		return n
	}

	for i := 0; i < 20; i++ {
		tree := gen(fmt.Sprintf("root%d", i), 4)

		sw, err := project.NewMemory(api.KindBlock)
		require.NoError(t, err)
		report, err := NewEngine(sw, catalog.NewFolder("lib")).Materialize(tree, nil)
		require.NoError(t, err)
		assert.Equal(t, tree.Count()[api.KindFolder], report.Folders)

		var check func(n *api.TreeNode, id string)
		check = func(n *api.TreeNode, id string) {
			children, err := sw.Store().ListChildren(id)
			require.NoError(t, err)
			require.Len(t, children, len(n.Children), "children of %s", id)
			for j, c := range n.Children {
				assert.Equal(t, id+"/"+c.Name, children[j])
				check(c, children[j])
			}
		}
		top, err := sw.Store().ListChildren(project.BlocksRoot)
		require.NoError(t, err)
		require.Equal(t, []string{project.BlocksRoot + "/" + tree.Name}, top)
		check(tree, top[0])
	}
}

func TestEngine_MatchAtAnyDepth(t *testing.T) {
	lib := catalog.NewFolder("lib")
	lib.Folder("a").Folder("b").Folder("c").Add(catalog.Template{Name: "FB_Deep", Kind: api.KindBlock})
	lib.Folder("other").Add(catalog.Template{Name: "FB_Other", Kind: api.KindBlock})

	rec := newRecorder(api.KindBlock)
	tree := folder("Program", folder("Motors", block("FB_Deep")))

	report, err := NewEngine(rec, lib).Materialize(tree, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"instantiate Program/Motors|FB_Deep"}, instantiations(rec.calls))
	assert.Equal(t, 1, report.Instantiated)
	assert.Empty(t, report.Missing)
}

func TestEngine_MissingTemplateIsSilent(t *testing.T) {
	rec := newRecorder(api.KindBlock)
	tree := folder("Program", block("FB_Unknown"), folder("Next"))

	report, err := NewEngine(rec, catalog.NewFolder("lib")).Materialize(tree, nil)
	require.NoError(t, err)

	assert.Empty(t, instantiations(rec.calls))
	assert.Equal(t, []string{"Program/FB_Unknown"}, report.Missing)
	assert.Equal(t, []string{"create |Program", "create Program|Next"}, rec.calls, "walk continues after a miss")
}

func TestEngine_SecondRunFailsWithDuplicateName(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "Main", Kind: api.KindBlock})
	sw, err := project.NewMemory(api.KindBlock)
	require.NoError(t, err)
	tree := folder("Program", block("Main"))

	engine := NewEngine(sw, lib)
	_, err = engine.Materialize(tree, nil)
	require.NoError(t, err)

	report, err := engine.Materialize(tree, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrDuplicateName)

	var me *project.MaterializationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, project.DuplicateName, me.Kind)
	assert.Equal(t, "Program", me.Name)
	assert.Equal(t, 0, report.Folders)
}

func TestEngine_RootLevelTemplatesWithMergedRoot(t *testing.T) {
	// catalog {subfolders: [{templates: [A]}], templates: [B]}
	lib := catalog.NewFolder("lib")
	lib.Folder("sub").Add(catalog.Template{Name: "A"})
	lib.Add(catalog.Template{Name: "B"})
	tree := folder("root", block("A"), block("B"))

	t.Run("merged root", func(t *testing.T) {
		rec := newRecorder(api.KindBlock)
		report, err := NewEngine(rec, lib, WithMergeRoot(true)).Materialize(tree, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"instantiate |A", "instantiate |B"}, rec.calls)
		assert.Equal(t, 0, report.Folders)
		assert.Equal(t, 2, report.Instantiated)
	})

	t.Run("root folder created", func(t *testing.T) {
		rec := newRecorder(api.KindBlock)
		_, err := NewEngine(rec, lib).Materialize(tree, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"create |root", "instantiate root|A", "instantiate root|B"}, rec.calls)
	})
}

func TestEngine_NestedCallOrder(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "leaf"})
	rec := newRecorder(api.KindBlock)

	_, err := NewEngine(rec, lib).Materialize(folder("F1", folder("F2", block("leaf"))), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create |F1",
		"create F1|F2",
		"instantiate F1/F2|leaf",
	}, rec.calls)
}

func TestEngine_SiblingOrderPreserved(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "m"}, catalog.Template{Name: "a"})
	rec := newRecorder(api.KindBlock)

	tree := folder("P", folder("z"), block("m"), folder("b", block("a")), folder("a"))
	_, err := NewEngine(rec, lib).Materialize(tree, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create |P",
		"create P|z",
		"instantiate P|m",
		"create P|b",
		"instantiate P/b|a",
		"create P|a",
	}, rec.calls)
}

func TestEngine_RootLevelLeaf(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "Main"})
	rec := newRecorder(api.KindBlock)

	_, err := NewEngine(rec, lib).Materialize(block("Main"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"instantiate |Main"}, rec.calls)
}

func TestEngine_ExplicitTarget(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "Main"})
	sw, err := project.NewMemory(api.KindBlock)
	require.NoError(t, err)
	existing, err := sw.Root().CreateSubfolder("Existing")
	require.NoError(t, err)

	_, err = NewEngine(sw, lib).Materialize(folder("New", block("Main")), existing)
	require.NoError(t, err)

	node, err := sw.Store().GetNode(project.BlocksRoot + "/Existing/New/Main")
	require.NoError(t, err)
	assert.Equal(t, "Main", node.Template)
}

func TestEngine_OtherSoftwareKindsSkipped(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(
		catalog.Template{Name: "Main", Kind: api.KindBlock},
		catalog.Template{Name: "Overview", Kind: api.KindScreen},
	)

	rec := newRecorder(api.KindBlock)
	report, err := NewEngine(rec, lib).Materialize(folder("P", screen("Overview"), block("Main")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create |P", "instantiate P|Main"}, rec.calls)
	assert.Equal(t, 1, report.Skipped)

	hmi := newRecorder(api.KindScreen)
	report, err = NewEngine(hmi, lib).Materialize(folder("P", screen("Overview"), block("Main")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create |P", "instantiate P|Overview"}, hmi.calls)
	assert.Equal(t, 1, report.Skipped)
}

func TestEngine_ContentChildrenLandBesideContent(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "Main"}, catalog.Template{Name: "Helper"})
	rec := newRecorder(api.KindBlock)

	tree := folder("P", block("Main", block("Helper"), folder("Sub")))
	_, err := NewEngine(rec, lib).Materialize(tree, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"create |P",
		"instantiate P|Main",
		"instantiate P|Helper",
		"create P|Sub",
	}, rec.calls)
}

func TestEngine_DuplicateCatalogNamesInstantiateEach(t *testing.T) {
	lib := catalog.NewFolder("lib")
	lib.Folder("v1").Add(catalog.Template{Name: "FB", Source: "v1"})
	lib.Folder("v2").Add(catalog.Template{Name: "FB", Source: "v2"})
	rec := newRecorder(api.KindBlock)

	report, err := NewEngine(rec, lib).Materialize(folder("P", block("FB")), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"instantiate P|FB", "instantiate P|FB"}, instantiations(rec.calls))
	assert.Equal(t, []string{"P/FB"}, report.Ambiguous)
	assert.Equal(t, 2, report.Instantiated)
}

func TestEngine_ErrorsPropagateWithoutRollback(t *testing.T) {
	lib := catalog.NewFolder("lib").Add(catalog.Template{Name: "Bad"}, catalog.Template{Name: "Good"})
	rec := newRecorder(api.KindBlock)
	rec.failOn = "Bad"

	tree := folder("P", folder("Done"), block("Good"), block("Bad"), folder("NeverCreated"))
	report, err := NewEngine(rec, lib).Materialize(tree, nil)
	require.Error(t, err)

	var me *project.MaterializationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, project.IncompatibleTemplate, me.Kind)
	assert.True(t, errors.Is(err, project.ErrIncompatibleTemplate))
	assert.Contains(t, err.Error(), "instantiate P/Bad")

	assert.Equal(t, []string{
		"create |P",
		"create P|Done",
		"instantiate P|Good",
		"instantiate P|Bad",
	}, rec.calls)
	assert.Equal(t, 2, report.Folders)
	assert.Equal(t, 1, report.Instantiated)

	rec = newRecorder(api.KindBlock)
	rec.failOn = "Done"
	_, err = NewEngine(rec, lib).Materialize(tree, nil)
	assert.ErrorIs(t, err, project.ErrDuplicateName)
	assert.Contains(t, err.Error(), "create folder P/Done")
}

func TestEngine_NilRoot(t *testing.T) {
	rec := newRecorder(api.KindBlock)
	report, err := NewEngine(rec, nil).Materialize(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
	assert.Equal(t, &Report{}, report)
}
