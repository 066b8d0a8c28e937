package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag values and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, envFile, logLevel, logFormat = "", "", "", ""
	applyTree, applyLibrary, applyProject, applyKind, applySelector = "", "", "", "", ""
	applyCreate, applyMergeRoot, applyDryRun = false, false, false
	validateSelector, libraryKind, projectKind, projectTemplate = "", "", "", ""
	serveLibrary, serveProject = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--log-level", "error", "--env-file", ""}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

type fixture struct {
	dir, tree, library, project string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		tree:    filepath.Join(dir, "tree.json"),
		library: filepath.Join(dir, "library.hcl"),
		project: filepath.Join(dir, "plant.db"),
	}
	require.NoError(t, os.WriteFile(f.tree, []byte(`{
  "name": "Plant", "type": 1,
  "subhmifolderblocks": [
    {"name": "Motors", "type": 1, "subhmifolderblocks": [{"name": "FB_Motor", "type": 2}]},
    {"name": "Overview", "type": 3},
    {"name": "FB_Pump", "type": 2}
  ]
}`), 0o644))
	require.NoError(t, os.WriteFile(f.library, []byte(`
folder "Drives" {
  template "FB_Motor" {
    kind    = "block"
    content = "FUNCTION_BLOCK FB_Motor"
  }
}
template "Overview" {
  kind = "screen"
}
`), 0o644))
	return f
}

func TestApplyShowRunsExport(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "apply", "--tree", f.tree, "--library", f.library, "--project", f.project, "--create")
	require.NoError(t, err)
	assert.Contains(t, out, "created 2 folders, instantiated 1 master copies")
	assert.Contains(t, out, "Skipped 1 nodes")
	assert.Contains(t, out, "  Plant/FB_Pump\n")

	out, err = execute(t, "apply", "-t", f.tree, "-l", f.library, "-p", f.project, "--kind", "screen")
	require.NoError(t, err)
	assert.Contains(t, out, "created 2 folders, instantiated 1 master copies")

	out, err = execute(t, "apply", "-t", f.tree, "-l", f.library, "-p", f.project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
	assert.Contains(t, out, "created 0 folders")

	out, err = execute(t, "project", "show", f.project, "--kind", "block")
	require.NoError(t, err)
	assert.Equal(t, "Program blocks/\n"+
		"  Plant/\n"+
		"    Motors/\n"+
		"      FB_Motor  [block from FB_Motor, 23 bytes]\n", out)

	out, err = execute(t, "project", "show", f.project)
	require.NoError(t, err)
	assert.Contains(t, out, "Screens/\n")

	out, err = execute(t, "project", "show", f.project, "--template", "FB_Motor")
	require.NoError(t, err)
	assert.Equal(t, "Program blocks/Plant/Motors/FB_Motor\n1 instances of FB_Motor\n", out)

	out, err = execute(t, "project", "show", f.project, "--template", "FB_Motor", "--kind", "screen")
	require.NoError(t, err)
	assert.Equal(t, "0 instances of FB_Motor\n", out)

	out, err = execute(t, "project", "runs", f.project)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("succeeded")))
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "error: ")

	exportDir := filepath.Join(f.dir, "export")
	out, err = execute(t, "project", "export", f.project, exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 objects from Program blocks")
	data, err := os.ReadFile(filepath.Join(exportDir, "Program blocks", "Plant", "Motors", "FB_Motor.block"))
	require.NoError(t, err)
	assert.Equal(t, "FUNCTION_BLOCK FB_Motor", string(data))

	// the export is a usable directory library
	out, err = execute(t, "library", "list", filepath.Join(exportDir, "Program blocks"))
	require.NoError(t, err)
	assert.Contains(t, out, "Plant/Motors/FB_Motor")
}

func TestApply_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "apply", "--library", f.library, "--project", f.project)
	assert.Error(t, err, "--tree is required")

	_, err = execute(t, "apply", "--tree", f.tree, "--project", f.project, "--create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no library")

	_, err = execute(t, "apply", "--tree", f.tree, "--library", f.library, "--project", f.project, "--kind", "folder")
	require.Error(t, err)

	_, err = execute(t, "apply", "--tree", f.tree, "--library", f.library, "--project", f.project)
	require.Error(t, err, "project must exist without --create")

	_, err = os.Stat(f.project)
	assert.True(t, os.IsNotExist(err))
}

func TestApply_DryRun(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "apply", "--tree", f.tree, "--library", f.library, "--project", f.project, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run: created 2 folders, instantiated 1 master copies")
	assert.Contains(t, out, "Program blocks/\n"+
		"  Plant/\n"+
		"    Motors/\n"+
		"      FB_Motor  [block from FB_Motor, 23 bytes]\n")

	_, err = os.Stat(f.project)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.project + ".lock")
	assert.True(t, os.IsNotExist(err))

	// an existing project is left alone
	_, err = execute(t, "apply", "-t", f.tree, "-l", f.library, "-p", f.project, "--create")
	require.NoError(t, err)
	out, err = execute(t, "apply", "-t", f.tree, "-l", f.library, "-p", f.project, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run: created 2 folders")
	out, err = execute(t, "project", "runs", f.project)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("succeeded")))
}

func TestApply_ConfigFile(t *testing.T) {
	f := newFixture(t)
	cfgPath := filepath.Join(f.dir, "mastercopy.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("library: "+f.library+"\nproject:\n  path: "+f.project+"\napply:\n  merge_root: true\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "apply", "--tree", f.tree, "--create")
	require.NoError(t, err)
	assert.Contains(t, out, "created 1 folders")

	out, err = execute(t, "project", "show", f.project)
	require.NoError(t, err)
	assert.Contains(t, out, "Program blocks/\n  Motors/\n")
}

func TestValidate(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "validate", f.tree)
	require.NoError(t, err)
	assert.Equal(t, "Plant: ok (2 folders, 2 blocks, 1 screens, depth 2)\n", out)

	bad := filepath.Join(f.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name": "Plant", "type": 1, "subhmifolderblocks": [{"name": "x"}]}`), 0o644))
	_, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.subhmifolderblocks[0].type")
}

func TestLibraryList(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "library", "list", f.library)
	require.NoError(t, err)
	assert.Contains(t, out, "Drives/FB_Motor")
	assert.Contains(t, out, "library.hcl:3")
	assert.Contains(t, out, "2 templates in 2 folders (1 blocks, 1 screens, 0 untyped)")

	out, err = execute(t, "library", "list", f.library, "--kind", "screen")
	require.NoError(t, err)
	assert.NotContains(t, out, "FB_Motor")
	assert.Contains(t, out, "Overview")
}
