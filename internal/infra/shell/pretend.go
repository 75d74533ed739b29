package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// PretendRunner prints commands instead of running them. Every command
// reports exit status 0 and empty output.
type PretendRunner struct {
	Out io.Writer

	mu    sync.Mutex
	lines []string
}

// NewPretendRunner writes to out, or stdout when out is nil.
func NewPretendRunner(out io.Writer) *PretendRunner {
	if out == nil {
		out = os.Stdout
	}
	return &PretendRunner{Out: out}
}

// Run implements domain.CommandRunner.
func (p *PretendRunner) Run(ctx context.Context, dir, command string) (domain.CommandResult, error) {
	res := domain.CommandResult{Command: command, Dir: dir}
	if err := ctx.Err(); err != nil {
		res.ExitCode = -1
		return res, err
	}
	line := Line(dir, command)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, line)
	if p.Out != nil {
		fmt.Fprintf(p.Out, "[pretend] $ %s\n", line)
	}
	return res, nil
}

// Lines returns every command line printed so far.
func (p *PretendRunner) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}
