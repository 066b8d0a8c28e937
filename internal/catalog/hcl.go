package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/agentic-research/mastercopy/api"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclBody is the shape shared by the library file root and folder blocks.
type hclBody struct {
	Folders   []*hclFolder   `hcl:"folder,block"`
	Templates []*hclTemplate `hcl:"template,block"`
}

type hclFolder struct {
	Name      string         `hcl:"name,label"`
	Folders   []*hclFolder   `hcl:"folder,block"`
	Templates []*hclTemplate `hcl:"template,block"`
}

type hclTemplate struct {
	Name      string    `hcl:"name,label"`
	Kind      string    `hcl:"kind,optional"`
	Content   string    `hcl:"content,optional"`
	File      string    `hcl:"file,optional"`
	DeclRange hcl.Range `hcl:",def_range"`
}

// LoadHCL reads a library definition file. Template "file" attributes are
// resolved relative to the directory holding the file.
func LoadHCL(path string) (*MemoryFolder, error) {
	dir := osfs.New(filepath.Dir(path))
	src, err := util.ReadFile(dir, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("read library %s: %w", path, err)
	}
	return ParseHCL(src, path, dir)
}

// ParseHCL decodes a library definition. files backs "file" attributes and
// may be nil when the library only uses inline content.
//
//	folder "Motors" {
//	  template "FB_Motor" {
//	    kind = "block"
//	    file = "blocks/FB_Motor.scl"
//	  }
//	}
func ParseHCL(src []byte, filename string, files billy.Filesystem) (*MemoryFolder, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse library %s: %w", filename, diags)
	}

	var body hclBody
	if diags := gohcl.DecodeBody(f.Body, nil, &body); diags.HasErrors() {
		return nil, fmt.Errorf("decode library %s: %w", filename, diags)
	}

	root := NewFolder(filepath.Base(filename))
	if err := fillFolder(root, body.Folders, body.Templates, files); err != nil {
		return nil, err
	}
	return root, nil
}

func fillFolder(dst *MemoryFolder, folders []*hclFolder, templates []*hclTemplate, files billy.Filesystem) error {
	for _, hf := range folders {
		sub := dst.Folder(hf.Name)
		if err := fillFolder(sub, hf.Folders, hf.Templates, files); err != nil {
			return err
		}
	}
	for _, ht := range templates {
		t, err := ht.template(files)
		if err != nil {
			return err
		}
		dst.Add(t)
	}
	return nil
}

func (ht *hclTemplate) template(files billy.Filesystem) (Template, error) {
	source := fmt.Sprintf("%s:%d", ht.DeclRange.Filename, ht.DeclRange.Start.Line)

	kind, err := api.ParseKind(ht.Kind)
	if err != nil {
		return Template{}, fmt.Errorf("%s: template %q: %w", source, ht.Name, err)
	}
	if kind == api.KindFolder {
		return Template{}, fmt.Errorf("%s: template %q: kind must be block or screen", source, ht.Name)
	}
	if ht.Content != "" && ht.File != "" {
		return Template{}, fmt.Errorf("%s: template %q: content and file are mutually exclusive", source, ht.Name)
	}

	content := []byte(ht.Content)
	if ht.File != "" {
		if files == nil {
			return Template{}, fmt.Errorf("%s: template %q: file attribute needs a base directory", source, ht.Name)
		}
		content, err = util.ReadFile(files, ht.File)
		if err != nil {
			return Template{}, fmt.Errorf("%s: template %q: %w", source, ht.Name, err)
		}
	}

	return Template{
		Name:    ht.Name,
		Kind:    kind,
		Content: content,
		Source:  source,
	}, nil
}
