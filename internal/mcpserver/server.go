// Package mcpserver exposes tree materialization as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/materialize"
	"github.com/agentic-research/mastercopy/internal/project"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Options are the defaults a tool call falls back to.
type Options struct {
	Project   string
	Software  api.Kind
	MergeRoot bool
	Version   string
}

// Server is the MCP tool surface over one shared library.
type Server struct {
	opts    Options
	library *catalog.HotSwap
	log     *zap.Logger
	mcp     *server.MCPServer
}

// New registers the tools over lib. The library is shared by every call and
// replaced by reload_library.
func New(lib *catalog.HotSwap, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		opts:    opts,
		library: lib,
		log:     log,
		mcp:     server.NewMCPServer("mastercopy", opts.Version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("apply_tree",
		mcp.WithDescription("Materialize a folder/block/screen tree into the project from the master-copy library"),
		mcp.WithString("tree", mcp.Required(), mcp.Description("Tree document as JSON text")),
		mcp.WithString("selector", mcp.Description("JSONPath selecting the tree inside the document")),
		mcp.WithString("project", mcp.Description("Project file; defaults to the configured project")),
		mcp.WithString("kind", mcp.Description("Target software: block or screen")),
		mcp.WithBoolean("create", mcp.Description("Create a new project file")),
		mcp.WithBoolean("merge_root", mcp.Description("Map a folder root onto the top level")),
		mcp.WithBoolean("dry_run", mcp.Description("Materialize into memory only and return the resulting hierarchy")),
	), s.handleApply)

	s.mcp.AddTool(mcp.NewTool("validate_tree",
		mcp.WithDescription("Check a tree document without touching any project"),
		mcp.WithString("tree", mcp.Required(), mcp.Description("Tree document as JSON text")),
		mcp.WithString("selector", mcp.Description("JSONPath selecting the tree inside the document")),
	), s.handleValidate)

	s.mcp.AddTool(mcp.NewTool("list_library",
		mcp.WithDescription("List the master copies of the loaded library"),
		mcp.WithString("kind", mcp.Description("Only list templates of this kind")),
	), s.handleList)

	s.mcp.AddTool(mcp.NewTool("reload_library",
		mcp.WithDescription("Reload the master-copy library from disk"),
		mcp.WithString("location", mcp.Description("Library directory or HCL file; defaults to the current one")),
	), s.handleReload)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("serving MCP on stdio", zap.String("library", s.library.Location()))
	return server.ServeStdio(s.mcp)
}

type applyResult struct {
	RunID        string   `json:"run_id"`
	Folders      int      `json:"folders"`
	Instantiated int      `json:"instantiated"`
	Missing      []string `json:"missing,omitempty"`
	Ambiguous    []string `json:"ambiguous,omitempty"`
	Skipped      int      `json:"skipped"`
	DryRun       bool     `json:"dry_run,omitempty"`
	Hierarchy    string   `json:"hierarchy,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func (s *Server) handleApply(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := req.RequireString("tree")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	software := s.opts.Software
	if k := req.GetString("kind", ""); k != "" {
		software, err = api.ParseKind(k)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if !software.IsContent() {
		return mcp.NewToolResultError(fmt.Sprintf("kind must be block or screen, got %s", software)), nil
	}

	res, err := materialize.Apply(materialize.Request{
		TreeData:  []byte(tree),
		Selector:  req.GetString("selector", ""),
		Library:   s.library.Location(),
		Catalog:   s.library.Current(),
		Project:   req.GetString("project", s.opts.Project),
		Create:    req.GetBool("create", false),
		Software:  software,
		MergeRoot: req.GetBool("merge_root", s.opts.MergeRoot),
		DryRun:    req.GetBool("dry_run", false),
	}, s.log)
	if res == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := applyResult{
		RunID:        res.RunID,
		Folders:      res.Report.Folders,
		Instantiated: res.Report.Instantiated,
		Missing:      res.Report.Missing,
		Ambiguous:    res.Report.Ambiguous,
		Skipped:      res.Report.Skipped,
	}
	if res.Preview != nil {
		out.DryRun = true
		root, rerr := project.RootName(software)
		if rerr != nil {
			return mcp.NewToolResultError(rerr.Error()), nil
		}
		var b strings.Builder
		if derr := project.Dump(&b, res.Preview, root); derr != nil {
			return mcp.NewToolResultError(derr.Error()), nil
		}
		out.Hierarchy = b.String()
	}
	if err != nil {
		// Partial work stays in the project; report it with the error.
		out.Error = err.Error()
		return jsonResult(out, true)
	}
	return jsonResult(out, false)
}

type validateResult struct {
	Root    string `json:"root"`
	Folders int    `json:"folders"`
	Blocks  int    `json:"blocks"`
	Screens int    `json:"screens"`
	Depth   int    `json:"depth"`
}

func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := req.RequireString("tree")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := api.ParseTreeAt([]byte(tree), req.GetString("selector", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	counts := root.Count()
	out := validateResult{
		Root:    root.Name,
		Folders: counts[api.KindFolder],
		Blocks:  counts[api.KindBlock],
		Screens: counts[api.KindScreen],
	}
	root.Walk(func(_ *api.TreeNode, depth int) bool {
		out.Depth = max(out.Depth, depth)
		return true
	})
	return jsonResult(out, false)
}

type libraryEntry struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter api.Kind
	if k := req.GetString("kind", ""); k != "" {
		var err error
		if filter, err = api.ParseKind(k); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	entries := []libraryEntry{}
	for _, e := range catalog.List(s.library.Current()) {
		if filter != 0 && e.Kind != filter {
			continue
		}
		entries = append(entries, libraryEntry{Path: e.Path, Name: e.Name, Kind: e.Kind.String(), Source: e.Source})
	}
	return jsonResult(entries, false)
}

func (s *Server) handleReload(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lib, err := s.library.Reload(req.GetString("location", ""))
	if err != nil {
		s.log.Warn("library reload failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	st := catalog.Collect(lib)
	s.log.Info("library reloaded",
		zap.String("library", s.library.Location()),
		zap.Int("templates", st.Templates))
	return mcp.NewToolResultText(fmt.Sprintf("loaded %d templates in %d folders from %s",
		st.Templates, st.Folders, s.library.Location())), nil
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = isError
	return res, nil
}
