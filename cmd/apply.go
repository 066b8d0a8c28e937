package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/materialize"
	"github.com/agentic-research/mastercopy/internal/project"
	"github.com/spf13/cobra"
)

var (
	applyTree      string
	applyLibrary   string
	applyProject   string
	applyKind      string
	applySelector  string
	applyCreate    bool
	applyMergeRoot bool
	applyDryRun    bool
)

func init() {
	applyCmd.Flags().StringVarP(&applyTree, "tree", "t", "", "Tree document (JSON)")
	applyCmd.Flags().StringVarP(&applyLibrary, "library", "l", "", "Master-copy library: directory or HCL file")
	applyCmd.Flags().StringVarP(&applyProject, "project", "p", "", "Project file")
	applyCmd.Flags().StringVarP(&applyKind, "kind", "k", "", "Target software: block or screen")
	applyCmd.Flags().StringVar(&applySelector, "select", "", "JSONPath selecting the tree inside the document")
	applyCmd.Flags().BoolVar(&applyCreate, "create", false, "Create a new project file")
	applyCmd.Flags().BoolVar(&applyMergeRoot, "merge-root", false, "Map a folder root onto the top level instead of creating it")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Materialize into memory and print the result; no project file is touched")
	_ = applyCmd.MarkFlagRequired("tree")
	rootCmd.AddCommand(applyCmd)
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Materialize a tree into a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		library := firstNonEmpty(applyLibrary, cfg.Library)
		if library == "" {
			return errors.New("no library: pass --library or set library in the config")
		}
		software := cfg.Kind()
		if applyKind != "" {
			k, err := api.ParseKind(applyKind)
			if err != nil {
				return err
			}
			if !k.IsContent() {
				return fmt.Errorf("--kind must be block or screen, got %s", k)
			}
			software = k
		}

		res, err := materialize.Apply(materialize.Request{
			Tree:      applyTree,
			Selector:  firstNonEmpty(applySelector, cfg.Apply.Selector),
			Library:   library,
			Project:   firstNonEmpty(applyProject, cfg.Project.Path),
			Create:    applyCreate,
			Software:  software,
			MergeRoot: applyMergeRoot || cfg.Apply.MergeRoot,
			DryRun:    applyDryRun,
		}, logger)
		if res == nil {
			return err
		}
		printReport(cmd.OutOrStdout(), res)
		if res.Preview != nil {
			root, rerr := project.RootName(software)
			if rerr != nil {
				return rerr
			}
			if derr := project.Dump(cmd.OutOrStdout(), res.Preview, root); derr != nil {
				return derr
			}
		}
		return err
	},
}

func printReport(w io.Writer, res *materialize.Result) {
	r := res.Report
	run := "Run " + res.RunID
	if res.RunID == "" {
		run = "Dry run"
	}
	_, _ = fmt.Fprintf(w, "%s: created %d folders, instantiated %d master copies\n", run, r.Folders, r.Instantiated)
	if r.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Skipped %d nodes for the other software\n", r.Skipped)
	}
	if len(r.Missing) > 0 {
		_, _ = fmt.Fprintf(w, "No master copy for %d nodes:\n", len(r.Missing))
		for _, p := range r.Missing {
			_, _ = fmt.Fprintf(w, "  %s\n", p)
		}
	}
	for _, p := range r.Ambiguous {
		_, _ = fmt.Fprintf(w, "Ambiguous master copy name, instantiated every match: %s\n", p)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
