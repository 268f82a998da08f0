package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orchestra",
	Short: "Parallel AI-agent orchestrator",
	Long: `orchestra drives many development tasks to completion concurrently,
each in an isolated git worktree on its own branch, then merges the
successful branches back into a base branch.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
