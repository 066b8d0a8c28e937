package cmd

import (
	"errors"
	"fmt"
	"path"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/spf13/cobra"
)

var libraryKind string

func init() {
	libraryListCmd.Flags().StringVarP(&libraryKind, "kind", "k", "", "Only list templates of this kind")
	libraryCmd.AddCommand(libraryListCmd)
	rootCmd.AddCommand(libraryCmd)
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Inspect master-copy libraries",
}

var libraryListCmd = &cobra.Command{
	Use:   "list [library]",
	Short: "List the master copies of a library in search order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := cfg.Library
		if len(args) == 1 {
			location = args[0]
		}
		if location == "" {
			return errors.New("no library: pass one or set library in the config")
		}
		filter, err := api.ParseKind(libraryKind)
		if err != nil {
			return err
		}

		lib, err := catalog.Open(location)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, e := range catalog.List(lib) {
			if filter != 0 && e.Kind != filter {
				continue
			}
			_, _ = fmt.Fprintf(w, "%-40s %-7s %s\n", path.Join(e.Path, e.Name), e.Kind, e.Source)
		}

		st := catalog.Collect(lib)
		_, _ = fmt.Fprintf(w, "%d templates in %d folders (%d blocks, %d screens, %d untyped)\n",
			st.Templates, st.Folders, st.ByKind[api.KindBlock], st.ByKind[api.KindScreen], st.ByKind[0])
		for _, name := range st.Duplicates {
			_, _ = fmt.Fprintf(w, "warning: %q is defined more than once\n", name)
		}
		return nil
	},
}
