package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackplan-io/stackplan/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "stackplan",
	Short: "Declarative plan/preview pipeline for cloud infrastructure",
	Long: `Stackplan evaluates a PKL resource declaration set into an execution
plan, applies it against a cloud provider, and runs the CI-style pipeline
that produces and retains plan artifacts.

The workflow:
  • Declare parameters, resources, and outputs in main.pkl
  • 'stackplan plan' previews the changes and writes a plan file
  • 'stackplan apply' executes the plan and records state
  • 'stackplan run' executes the pipeline definition for a push event`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
