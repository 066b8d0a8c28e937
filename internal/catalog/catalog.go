// Package catalog models a master-copy library: a tree of folders holding
// named templates that can be instantiated into a project.
package catalog

import (
	"github.com/agentic-research/mastercopy/api"
)

// Template is a named master copy.
type Template struct {
	Name string
	// Kind is the content kind the template produces. 0 means untyped.
	Kind api.Kind
	// Content is the payload written when the template is instantiated.
	Content []byte
	// Source identifies where the template was loaded from (file path, block range).
	Source string
}

// Folder is one level of the library. Implementations must be safe to read
// while a materialization runs; they are never mutated by it.
type Folder interface {
	Name() string
	Subfolders() []Folder
	Templates() []Template
}

// Find returns every template named name under folder.
//
// Subfolders are searched first, depth first and in order, then the folder's
// own templates. The search never stops at the first hit; duplicate names
// come back as multiple matches.
func Find(folder Folder, name string) []Template {
	if folder == nil {
		return nil
	}
	var matches []Template
	for _, sub := range folder.Subfolders() {
		matches = append(matches, Find(sub, name)...)
	}
	for _, t := range folder.Templates() {
		if t.Name == name {
			matches = append(matches, t)
		}
	}
	return matches
}

// Walk visits every folder in the same order Find searches them. path is the
// slash-separated folder path relative to the root ("" for the root itself).
func Walk(folder Folder, fn func(path string, f Folder) error) error {
	return walk(folder, "", fn)
}

func walk(folder Folder, path string, fn func(string, Folder) error) error {
	if folder == nil {
		return nil
	}
	for _, sub := range folder.Subfolders() {
		p := sub.Name()
		if path != "" {
			p = path + "/" + p
		}
		if err := walk(sub, p, fn); err != nil {
			return err
		}
	}
	return fn(path, folder)
}

// Stats summarizes a library.
type Stats struct {
	Folders   int
	Templates int
	ByKind    map[api.Kind]int
	// Duplicates lists template names that occur more than once.
	Duplicates []string
}

// Collect computes Stats for the library rooted at folder.
func Collect(folder Folder) Stats {
	st := Stats{ByKind: make(map[api.Kind]int)}
	seen := make(map[string]int)
	_ = Walk(folder, func(_ string, f Folder) error {
		st.Folders++
		for _, t := range f.Templates() {
			st.Templates++
			st.ByKind[t.Kind]++
			seen[t.Name]++
			if seen[t.Name] == 2 {
				st.Duplicates = append(st.Duplicates, t.Name)
			}
		}
		return nil
	})
	return st
}

// Entry is a template together with the path of the folder holding it.
type Entry struct {
	Path string
	Template
}

// List returns every template of the library in search order.
func List(folder Folder) []Entry {
	var out []Entry
	_ = Walk(folder, func(p string, f Folder) error {
		for _, t := range f.Templates() {
			out = append(out, Entry{Path: p, Template: t})
		}
		return nil
	})
	return out
}

// MemoryFolder is an in-memory Folder.
type MemoryFolder struct {
	FolderName string
	Folders    []*MemoryFolder
	Items      []Template
}

// NewFolder returns an empty folder.
func NewFolder(name string) *MemoryFolder {
	return &MemoryFolder{FolderName: name}
}

func (f *MemoryFolder) Name() string { return f.FolderName }

func (f *MemoryFolder) Subfolders() []Folder {
	out := make([]Folder, len(f.Folders))
	for i, sub := range f.Folders {
		out[i] = sub
	}
	return out
}

func (f *MemoryFolder) Templates() []Template { return f.Items }

// Folder appends a subfolder and returns it.
func (f *MemoryFolder) Folder(name string) *MemoryFolder {
	sub := NewFolder(name)
	f.Folders = append(f.Folders, sub)
	return sub
}

// Add appends templates to the folder and returns f for chaining.
func (f *MemoryFolder) Add(templates ...Template) *MemoryFolder {
	f.Items = append(f.Items, templates...)
	return f
}

var _ Folder = (*MemoryFolder)(nil)
