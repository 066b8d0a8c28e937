package catalog

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/mastercopy/api"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// extKinds maps template file extensions to content kinds.
var extKinds = map[string]api.Kind{
	".block":  api.KindBlock,
	".scl":    api.KindBlock,
	".awl":    api.KindBlock,
	".db":     api.KindBlock,
	".screen": api.KindScreen,
	".xml":    api.KindScreen,
}

// Open loads a library from a directory or an HCL definition file.
func Open(location string) (*MemoryFolder, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	if info.IsDir() {
		lib, err := LoadFS(osfs.New(location), "/")
		if err != nil {
			return nil, err
		}
		lib.FolderName = filepath.Base(location)
		return lib, nil
	}
	return LoadHCL(location)
}

// LoadFS reads a directory library. Each directory is a folder and each
// regular file a template named after the file without its extension.
// Entries are read in lexical order; dot files are ignored.
func LoadFS(fs billy.Filesystem, root string) (*MemoryFolder, error) {
	if root == "" {
		root = "/"
	}
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat library %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library %s is not a directory", root)
	}
	name := path.Base(root)
	if name == "/" || name == "." {
		name = "library"
	}
	folder := NewFolder(name)
	if err := loadDir(fs, root, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func loadDir(fs billy.Filesystem, dir string, dst *MemoryFolder) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read library dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := loadDir(fs, p, dst.Folder(e.Name())); err != nil {
				return err
			}
			continue
		}
		if !e.Mode().IsRegular() {
			continue
		}
		content, err := util.ReadFile(fs, p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		ext := path.Ext(e.Name())
		dst.Add(Template{
			Name:    strings.TrimSuffix(e.Name(), ext),
			Kind:    extKinds[strings.ToLower(ext)],
			Content: content,
			Source:  p,
		})
	}
	return nil
}
