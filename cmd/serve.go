package cmd

import (
	"errors"

	"github.com/agentic-research/mastercopy/internal/catalog"
	"github.com/agentic-research/mastercopy/internal/mcpserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveLibrary string
	serveProject string
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

func init() {
	serveCmd.Flags().StringVarP(&serveLibrary, "library", "l", "", "Master-copy library: directory or HCL file")
	serveCmd.Flags().StringVarP(&serveProject, "project", "p", "", "Default project file for apply_tree")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve apply/validate/library tools over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		location := firstNonEmpty(serveLibrary, cfg.Library)
		if location == "" {
			return errors.New("no library: pass --library or set library in the config")
		}
		lib, err := catalog.Open(location)
		if err != nil {
			return err
		}
		st := catalog.Collect(lib)
		logger.Info("library loaded", zap.String("library", location), zap.Int("templates", st.Templates))

		srv := mcpserver.New(catalog.NewHotSwap(lib, location), mcpserver.Options{
			Project:   firstNonEmpty(serveProject, cfg.Project.Path),
			Software:  cfg.Kind(),
			MergeRoot: cfg.Apply.MergeRoot,
			Version:   Version,
		}, logger)
		return srv.ServeStdio()
	},
}
