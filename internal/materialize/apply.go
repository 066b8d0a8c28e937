package materialize

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/graph"
	"github.com/agentic-research/mastercopy/internal/project"
	"go.uber.org/zap"
)

// Request describes one apply against a project file.
type Request struct {
	// Tree is the path of the tree document. TreeData, when set, is used
	// instead of reading the file.
	Tree     string
	TreeData []byte
	// Selector picks the tree out of a larger document (JSONPath).
	Selector string
	// Library is an HCL definition file or a library directory. Catalog,
	// when set, is used instead of opening Library.
	Library string
	Catalog catalog.Folder
	// Project is the SQLite project file.
	Project string
	// Create makes a new project file instead of opening an existing one.
	Create    bool
	Software  api.Kind
	MergeRoot bool
	// DryRun materializes into an in-memory project instead of the file.
	DryRun bool
}

// Result is the outcome of Apply.
type Result struct {
	// RunID is empty for dry runs.
	RunID  string
	Report *Report
	// Preview holds the in-memory project of a dry run.
	Preview graph.Graph
}

// Apply parses the tree, opens the library and the project, and materializes
// the tree under the project lock. The run is recorded in the project file.
// Nothing is touched when the tree or the library fail to load.
//
// A non-nil Result is returned whenever materialization started, together
// with any error, so callers can report partial work.
func Apply(req Request, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}

	data := req.TreeData
	if data == nil {
		var err error
		data, err = os.ReadFile(req.Tree)
		if err != nil {
			return nil, fmt.Errorf("read tree: %w", err)
		}
	}
	root, err := api.ParseTreeAt(data, req.Selector)
	if err != nil {
		return nil, err
	}

	lib := req.Catalog
	if lib == nil {
		opened, err := catalog.Open(req.Library)
		if err != nil {
			return nil, err
		}
		lib = opened
	}
	st := catalog.Collect(lib)
	log.Info("library opened",
		zap.String("library", req.Library),
		zap.Int("folders", st.Folders),
		zap.Int("templates", st.Templates))
	if len(st.Duplicates) > 0 {
		log.Warn("library has duplicate template names", zap.Strings("names", st.Duplicates))
	}

	if req.DryRun {
		return dryRun(req, root, lib, log)
	}

	lock, err := project.AcquireLock(req.Project)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	var store *graph.SQLiteStore
	if req.Create {
		store, err = graph.CreateSQLiteStore(req.Project)
	} else {
		store, err = graph.OpenSQLiteStore(req.Project)
	}
	if err != nil {
		return nil, err
	}

	sw, err := project.NewSoftware(store, req.Software)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	defer func() { _ = sw.Close() }()

	run := graph.NewRun(req.Software, req.Tree, req.Library)
	if err := store.BeginRun(run); err != nil {
		return nil, err
	}
	log = log.With(zap.String("run", run.ID))
	log.Info("materializing tree",
		zap.String("root", root.Name),
		zap.Stringer("software", req.Software),
		zap.String("project", req.Project))

	engine := NewEngine(sw, lib, WithLogger(log), WithMergeRoot(req.MergeRoot))
	report, matErr := engine.Materialize(root, nil)
	result := &Result{RunID: run.ID, Report: report}

	run.Status = graph.RunSucceeded
	run.Folders = report.Folders
	run.Instantiated = report.Instantiated
	run.Missing = len(report.Missing)
	if matErr != nil {
		run.Status = graph.RunFailed
		run.Error = matErr.Error()
	}
	if err := store.FinishRun(run); err != nil {
		// Objects are already written; keep the report with the error.
		log.Error("recording run failed", zap.Error(err))
		return result, errors.Join(matErr, err)
	}

	return result, finish(log, report, matErr)
}

// dryRun materializes into a fresh in-memory project. No lock is taken and
// no project file is read or written.
func dryRun(req Request, root *api.TreeNode, lib catalog.Folder, log *zap.Logger) (*Result, error) {
	sw, err := project.NewMemory(req.Software)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Bool("dry_run", true))
	log.Info("materializing tree",
		zap.String("root", root.Name),
		zap.Stringer("software", req.Software))

	engine := NewEngine(sw, lib, WithLogger(log), WithMergeRoot(req.MergeRoot))
	report, matErr := engine.Materialize(root, nil)
	result := &Result{Report: report, Preview: sw.Store()}
	return result, finish(log, report, matErr)
}

func finish(log *zap.Logger, report *Report, matErr error) error {
	if matErr != nil {
		log.Error("materialization failed", zap.Error(matErr))
		return matErr
	}
	log.Info("materialization finished",
		zap.Int("folders", report.Folders),
		zap.Int("instantiated", report.Instantiated),
		zap.Int("missing", len(report.Missing)),
		zap.Int("skipped", report.Skipped))
	return nil
}
