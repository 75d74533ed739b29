package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of deployments to show (0 = all)")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Delete all but the newest N deployments")
	rootCmd.AddCommand(historyCmd)
}

var (
	historyLimit int
	historyPrune int
)

var errHistoryDisabled = errors.New("deployment history is disabled ([history] disabled = true)")

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"ls"},
	Short:   "List past deployments and task runs",
	Args:    cobra.NoArgs,
	RunE:    runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.DB == nil {
		return errHistoryDisabled
	}

	if historyPrune > 0 {
		n, err := d.DB.PruneDeployments(historyPrune)
		if err != nil {
			return err
		}
		writeLine(cmd.OutOrStdout(), "Pruned %d deployments.", n)
		return nil
	}

	deps, err := d.DB.ListDeployments(historyLimit)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		writeLine(cmd.OutOrStdout(), "No deployments yet. Run 'rocketeer deploy' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPIPELINE\tRELEASE\tVERDICT\tFAILED\tSTARTED\tDURATION")
	for _, dep := range deps {
		verdict := orDash(string(dep.Verdict))
		if dep.Pretend {
			verdict += " (pretend)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(dep.ID),
			dep.Pipeline,
			dep.Release,
			verdict,
			orDash(dep.FailedTask),
			formatTime(dep.StartedAt),
			dep.Duration().Round(time.Millisecond),
		)
	}
	return w.Flush()
}
