package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "caravel",
	Short: "Caravel - Multi-cloud deployment orchestrator",
	Long: `Caravel turns a declarative deployment intent into a concrete,
dependency-ordered execution plan, dispatches that plan as individually
retriable tasks to a pool of worker agents, and compares deployed state
against expected state to report configuration drift.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Caravel version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
