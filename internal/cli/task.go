package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(shortcut("unlock", "Release the deploy lock"))
	rootCmd.AddCommand(shortcut("rollback", "Point current at the previous release"))
	rootCmd.AddCommand(shortcut("cleanup", "Remove releases beyond keep_releases"))
}

var taskCmd = &cobra.Command{
	Use:   "task NAME",
	Short: "Run a single task against the live release",
	Long: `Run one registered task, with its before, after and error hooks, outside
the deploy pipeline. Release-scoped commands run in <root>/current.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, args[0])
	},
}

// shortcut is a top-level command running the built-in task of the same name.
func shortcut(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, name)
		},
	}
}

func runTask(cmd *cobra.Command, name string) error {
	progress := newProgressPrinter(cmd.ErrOrStderr(), 0)
	d, err := openDaemon(cmd, progress)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := runContext(cmd)
	defer cancel()

	res, err := d.RunTask(ctx, name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range res.Commands {
		if c.Stdout != "" && !verbose {
			writeLine(out, "%s", strings.TrimRight(c.Stdout, "\r\n"))
		}
	}
	writeLine(out, "%s: %s", res.Task, res.Verdict)
	return verdictError(res.Verdict, res.Task, res.Message)
}
