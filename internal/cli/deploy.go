package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deployCmd)
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deploy pipeline",
	Long: `Run the deploy pipeline: build a new release, link shared folders,
swap the current symlink and clean up old releases.

A failed or halted step stops the pipeline unless continue_on_failure is set.
The deploy lock is kept after a failure; run 'rocketeer unlock' to release it.`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	progress := newProgressPrinter(cmd.ErrOrStderr(), 0)
	d, err := openDaemon(cmd, progress)
	if err != nil {
		return err
	}
	defer d.Close()
	progress.total = len(d.Orchestrator.Pipeline().Tasks)

	ctx, cancel := runContext(cmd)
	defer cancel()

	report, err := d.Deploy(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	writeLine(out, "Deployment: %s", report.Deployment.ID)
	writeLine(out, "Release:    %s", report.Deployment.Release)
	writeLine(out, "Verdict:    %s", report.Verdict)
	if report.LastCompleted != "" {
		writeLine(out, "Completed:  %s", report.LastCompleted)
	}
	return verdictError(report.Verdict, report.FailedTask, report.Message)
}
