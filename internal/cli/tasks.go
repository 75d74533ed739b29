package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guoyu07/rocketeer/internal/domain"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List registered tasks and their hooks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	pipeline := d.Orchestrator.Pipeline()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tORIGIN\tBEFORE\tAFTER\tERROR\tDESCRIPTION")
	for _, e := range d.Orchestrator.Catalogue() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Name,
			e.Origin,
			e.Listeners[domain.PhaseBefore],
			e.Listeners[domain.PhaseAfter],
			e.Listeners[domain.PhaseError],
			orDash(e.Description),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	writeLine(cmd.OutOrStdout(), "\n%s: %s", pipeline.Name, strings.Join(pipeline.Tasks, " → "))
	if unbound := d.Orchestrator.UnboundEvents(); len(unbound) > 0 {
		writeLine(cmd.OutOrStdout(), "hooks on unknown tasks (never fire): %s", strings.Join(unbound, ", "))
	}
	return nil
}
