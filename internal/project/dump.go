package project

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/graph"
	billy "github.com/go-git/go-billy/v5"
)

// Dump writes the hierarchy under rootID as an indented listing.
// Folders end in "/", content lines name their master copy.
func Dump(w io.Writer, g graph.Graph, rootID string) error {
	node, err := g.GetNode(rootID)
	if err != nil {
		return fmt.Errorf("dump %s: %w", rootID, err)
	}
	return dumpNode(w, g, node, 0)
}

func dumpNode(w io.Writer, g graph.Graph, node *graph.Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	if !node.IsFolder() {
		_, err := fmt.Fprintf(w, "%s%s  [%s from %s, %d bytes]\n", indent, node.Name(), node.Kind, node.Template, node.ContentSize())
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%s/\n", indent, node.Name()); err != nil {
		return err
	}
	children, err := g.ListChildren(node.ID)
	if err != nil {
		return err
	}
	for _, id := range children {
		child, err := g.GetNode(id)
		if err != nil {
			return err
		}
		if err := dumpNode(w, g, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// contentExt is the file extension used when exporting content objects.
func contentExt(k api.Kind) string {
	switch k {
	case api.KindBlock:
		return ".block"
	case api.KindScreen:
		return ".screen"
	}
	return ""
}

// Export writes the hierarchy under rootID into fs below dir: folders become
// directories and content objects become files holding their content.
// The written files load back as a directory library.
func Export(g graph.Graph, rootID string, fs billy.Filesystem, dir string) (int, error) {
	node, err := g.GetNode(rootID)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", rootID, err)
	}
	return exportNode(g, node, fs, path.Join(dir, node.Name()))
}

func exportNode(g graph.Graph, node *graph.Node, fs billy.Filesystem, target string) (int, error) {
	if !node.IsFolder() {
		if err := exportContent(g, node, fs, target+contentExt(node.Kind)); err != nil {
			return 0, fmt.Errorf("write %s: %w", target, err)
		}
		return 1, nil
	}
	if err := fs.MkdirAll(target, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", target, err)
	}
	children, err := g.ListChildren(node.ID)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, id := range children {
		child, err := g.GetNode(id)
		if err != nil {
			return written, err
		}
		n, err := exportNode(g, child, fs, path.Join(target, child.Name()))
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// exportChunk is the read size used when streaming content out of a graph.
const exportChunk = 32 * 1024

func exportContent(g graph.Graph, node *graph.Node, fs billy.Filesystem, name string) (err error) {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	buf := make([]byte, exportChunk)
	var offset int64
	for {
		n, err := g.ReadContent(node.ID, buf, offset)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return err
		}
		offset += int64(n)
	}
}
