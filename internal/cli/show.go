package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a deployment and its task results",
	Long:  `Show one deployment. ID may be any unique prefix of the deployment ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.DB == nil {
		return errHistoryDisabled
	}

	dep, err := d.DB.GetDeployment(args[0])
	if err != nil {
		return err
	}
	records, err := d.DB.ListTaskRecords(dep.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeLine(out, "ID:             %s", dep.ID)
	writeLine(out, "Application:    %s", orDash(dep.Application))
	writeLine(out, "Pipeline:       %s", dep.Pipeline)
	writeLine(out, "Release:        %s", dep.Release)
	writeLine(out, "Pretend:        %t", dep.Pretend)
	writeLine(out, "Verdict:        %s", orDash(string(dep.Verdict)))
	writeLine(out, "Failed task:    %s", orDash(dep.FailedTask))
	writeLine(out, "Last completed: %s", orDash(dep.LastCompleted))
	writeLine(out, "Message:        %s", orDash(dep.Message))
	writeLine(out, "Started:        %s", formatTime(dep.StartedAt))
	writeLine(out, "Finished:       %s", formatTime(dep.FinishedAt))
	if len(records) == 0 {
		return nil
	}

	writeLine(out, "")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tVERDICT\tEXIT\tCOMMANDS\tDURATION\tMESSAGE")
	for _, r := range records {
		indent := strings.Repeat("  ", max(r.Depth, 0))
		fmt.Fprintf(w, "%s%s\t%s\t%d\t%d\t%s\t%s\n",
			indent, r.Task,
			r.Verdict,
			r.ExitCode,
			r.Commands,
			r.Duration.Round(time.Millisecond),
			orDash(firstLine(r.Message)),
		)
	}
	return w.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
