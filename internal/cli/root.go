// Package cli implements the rocketeer command-line interface using Cobra.
// Each subcommand loads the project file, wires a daemon and runs one
// operation against the deployment target.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rocketeer",
	Short: "Deploy applications with tasks and hooks",
	Long: `rocketeer runs deployment pipelines made of named tasks.

Tasks run shell commands in the application root or the release being built.
Hooks listen to before.<task>, after.<task> and error.<task> events and may
halt a task before or after it runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	pretend    bool
	verbose    bool
	quiet      bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Project file (default: rocketeer.toml or rocketeer.yaml in the working directory)")
	flags.BoolVar(&pretend, "pretend", false, "Print commands instead of running them")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every command and stream its output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
