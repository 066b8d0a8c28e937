package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/graph"
	"github.com/agentic-research/mastercopy/internal/project"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var (
	projectKind     string
	projectTemplate string
)

func init() {
	projectCmd.PersistentFlags().StringVarP(&projectKind, "kind", "k", "", "Only this software: block or screen")
	projectShowCmd.Flags().StringVar(&projectTemplate, "template", "", "List the objects created from this master copy instead")
	projectCmd.AddCommand(projectShowCmd, projectRunsCmd, projectExportCmd)
	rootCmd.AddCommand(projectCmd)
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect project files",
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project.db]",
	Short: "Print the folder hierarchy of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := graph.OpenSQLiteStore(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		roots, err := softwareRoots(store)
		if err != nil {
			return err
		}
		if projectTemplate != "" {
			return printInstances(cmd.OutOrStdout(), store, roots, projectTemplate)
		}
		for _, id := range roots {
			if err := project.Dump(cmd.OutOrStdout(), store, id); err != nil {
				return err
			}
		}
		return nil
	},
}

// printInstances lists the objects under roots created from template.
func printInstances(w io.Writer, g graph.Graph, roots []string, template string) error {
	ids, err := g.Instances(template)
	if err != nil {
		return fmt.Errorf("instances of %s: %w", template, err)
	}
	n := 0
	for _, id := range ids {
		for _, root := range roots {
			if strings.HasPrefix(id, root+"/") {
				_, _ = fmt.Fprintln(w, id)
				n++
				break
			}
		}
	}
	_, _ = fmt.Fprintf(w, "%d instances of %s\n", n, template)
	return nil
}

var projectRunsCmd = &cobra.Command{
	Use:   "runs [project.db]",
	Short: "List the materialization runs recorded in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := graph.OpenSQLiteStore(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		runs, err := store.Runs()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, r := range runs {
			_, _ = fmt.Fprintf(w, "%s  %s  %-6s  %-9s  folders=%d instantiated=%d missing=%d  %s\n",
				r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Software, r.Status,
				r.Folders, r.Instantiated, r.Missing, r.Tree)
			if r.Error != "" {
				_, _ = fmt.Fprintf(w, "    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

var projectExportCmd = &cobra.Command{
	Use:   "export [project.db] [dir]",
	Short: "Write a project hierarchy out as a directory tree",
	Long: `Folders become directories and content objects become .block or .screen
files holding their master-copy content. The result can be used as a
directory library.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := graph.OpenSQLiteStore(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		roots, err := softwareRoots(store)
		if err != nil {
			return err
		}
		fs := osfs.New(args[1])
		for _, id := range roots {
			n, err := project.Export(store, id, fs, "/")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d objects from %s\n", n, id)
		}
		return nil
	},
}

// softwareRoots returns the top-level roots to operate on: the one selected
// by --kind, or every root in the project.
func softwareRoots(g graph.Graph) ([]string, error) {
	if projectKind == "" {
		return g.ListChildren("")
	}
	k, err := api.ParseKind(projectKind)
	if err != nil {
		return nil, err
	}
	name, err := project.RootName(k)
	if err != nil {
		return nil, err
	}
	if _, err := g.GetNode(name); err != nil {
		return nil, fmt.Errorf("project has no %s software: %w", k, err)
	}
	return []string{name}, nil
}
