// Package shell runs task commands through a POSIX shell.
//
// Every command is executed as
//
//	<shell> -c "cd <dir> && <command>"
//
// so a missing directory fails like any other command instead of failing to
// start, and the same command line works unchanged over a remote transport.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// DefaultShell is used when LocalRunner.Shell is empty.
const DefaultShell = "sh"

// ─── Local Runner ───────────────────────────────────────────────────────────

// LocalRunner implements domain.CommandRunner on the local machine.
type LocalRunner struct {
	// Shell is the interpreter invoked with -c.
	Shell string
	// Env is appended to the current process environment.
	Env []string
	// Timeout bounds a single command; zero means no limit.
	Timeout time.Duration
	// Stream, if set, receives stdout and stderr as they are produced.
	Stream io.Writer

	mu sync.Mutex // serialises writes to Stream
}

// NewLocalRunner creates a runner using shell (DefaultShell if empty).
func NewLocalRunner(shell string, timeout time.Duration) *LocalRunner {
	if shell == "" {
		shell = DefaultShell
	}
	return &LocalRunner{Shell: shell, Timeout: timeout}
}

// Run executes command in dir. A non-zero exit is reported through the
// result; the error is reserved for commands that could not run at all
// (missing shell, cancellation, timeout).
func (r *LocalRunner) Run(ctx context.Context, dir, command string) (domain.CommandResult, error) {
	res := domain.CommandResult{Command: command, Dir: dir}
	if strings.TrimSpace(command) == "" {
		return res, fmt.Errorf("empty command")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}
	cmd := exec.CommandContext(ctx, shell, "-c", Line(dir, command))
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = r.writers(&stdout, &stderr)

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("command %q: %w", command, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("failed to execute %q: %w", command, err)
}

func (r *LocalRunner) writers(stdout, stderr *bytes.Buffer) (io.Writer, io.Writer) {
	if r.Stream == nil {
		return stdout, stderr
	}
	stream := &lockedWriter{mu: &r.mu, w: r.Stream}
	return io.MultiWriter(stdout, stream), io.MultiWriter(stderr, stream)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// ─── Command Lines ──────────────────────────────────────────────────────────

// Line returns the shell line that runs command inside dir.
func Line(dir, command string) string {
	if dir == "" {
		return command
	}
	return "cd " + domain.ShellQuote(dir) + " && " + command
}
