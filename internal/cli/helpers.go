package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/daemon"
	"github.com/guoyu07/rocketeer/internal/domain"
)

// openDaemon wires a daemon from the persistent flags. Progress lines go to
// the command's error stream.
func openDaemon(cmd *cobra.Command, observers ...orchestrator.Observer) (*daemon.Daemon, error) {
	opts := daemon.Options{
		Pretend:   pretend,
		Verbose:   verbose,
		Quiet:     quiet,
		Out:       cmd.OutOrStdout(),
		Version:   rootCmd.Version,
		Observers: observers,
	}
	if verbose {
		opts.Stream = cmd.ErrOrStderr()
	}
	return daemon.New(configPath, opts)
}

// runContext cancels on SIGINT or SIGTERM; a cancelled run halts the task
// in progress.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// verdictError turns a non-success verdict into the command's error.
func verdictError(verdict domain.Verdict, task, message string) error {
	if verdict.OK() {
		return nil
	}
	if task == "" {
		return fmt.Errorf("%s: %s", verdict, message)
	}
	return fmt.Errorf("%s at %s: %s", verdict, task, message)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
