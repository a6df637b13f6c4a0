package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tsched",
	Short: "tsched - timestamp job scheduler with pausable virtual clocks",
	Long: `tsched runs jobs that fire at millisecond offsets from their own start.
Pausing a job freezes its clock; resuming continues from the frozen point.

Examples:
  tsched run --config tsched.yaml        # run until SIGINT/SIGTERM
  tsched validate --config tsched.yaml   # check a config file
  tsched plan --config tsched.yaml       # print expanded schedules
  tsched journal --config tsched.yaml    # show recorded firings`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./tsched.yaml", "path to config (yaml or json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
