package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the deployment target and the history database",
	Long: `Run the health checks (history database, root directory, stale deploy
lock), then the check task with its hooks.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := runContext(cmd)
	defer cancel()

	statuses := d.Health.RunOnce(ctx)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, s := range statuses {
		status := "ok"
		if !s.Healthy {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, status, orDash(s.Error))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	res, err := d.RunTask(ctx, "check")
	if err != nil {
		return err
	}
	writeLine(cmd.OutOrStdout(), "check task: %s", res.Verdict)
	if err := verdictError(res.Verdict, res.Task, res.Message); err != nil {
		return err
	}
	if !d.Health.IsHealthy() {
		return fmt.Errorf("health checks failed")
	}
	return nil
}
