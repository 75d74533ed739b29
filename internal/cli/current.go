package cli

import (
	"path"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(currentCmd)
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the release the current symlink points at",
	Args:  cobra.NoArgs,
	RunE:  runCurrent,
}

func runCurrent(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := runContext(cmd)
	defer cancel()

	target, err := d.Current(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		writeLine(cmd.OutOrStdout(), "No release is live yet.")
		return nil
	}
	writeLine(cmd.OutOrStdout(), "%s\t%s", path.Base(target), target)
	return nil
}
