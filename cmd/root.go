package cmd

import (
	"fmt"
	"os"

	"github.com/agentic-research/mastercopy/internal/config"
	"github.com/agentic-research/mastercopy/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	// Set by setup before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file with MASTERCOPY_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

var rootCmd = &cobra.Command{
	Use:   "mastercopy",
	Short: "Reproduce a folder tree in an engineering project from a master-copy library",
	Long: `mastercopy reads a JSON tree of folders, PLC blocks and HMI screens and
recreates it inside a project: folders become groups, and every block or
screen is instantiated from the master copy of the same name.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// setup resolves configuration (file, then environment, then flags) and
// builds the logger.
func setup() error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	lookup, err := config.Lookup(envFile)
	if err != nil {
		return err
	}
	c.ApplyEnv(lookup)
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
