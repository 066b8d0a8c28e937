package cmd

import (
	"fmt"
	"os"

	"github.com/agentic-research/mastercopy/api"
	"github.com/spf13/cobra"
)

var validateSelector string

func init() {
	validateCmd.Flags().StringVar(&validateSelector, "select", "", "JSONPath selecting the tree inside the document")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [tree.json]",
	Short: "Check a tree document without touching any project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read tree: %w", err)
		}
		root, err := api.ParseTreeAt(data, firstNonEmpty(validateSelector, cfg.Apply.Selector))
		if err != nil {
			return err
		}

		depth := 0
		root.Walk(func(_ *api.TreeNode, d int) bool {
			depth = max(depth, d)
			return true
		})
		counts := root.Count()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d folders, %d blocks, %d screens, depth %d)\n",
			root.Name, counts[api.KindFolder], counts[api.KindBlock], counts[api.KindScreen], depth)
		return nil
	},
}
