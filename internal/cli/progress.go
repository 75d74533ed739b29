package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
)

// ─── Progress ───────────────────────────────────────────────────────────────
// One line per finished pipeline step:
//   [ 3/12] lock            [ok]    0.02s │ ETA 4s

// progressPrinter is an orchestrator.Observer. Nested tasks (depth > 1) are
// folded into their pipeline step.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	total   int
	done    int
	started time.Time
	now     func() time.Time
}

func newProgressPrinter(out io.Writer, steps int) *progressPrinter {
	return &progressPrinter{out: out, total: steps, now: time.Now}
}

func (p *progressPrinter) DeploymentStarted(d domain.Deployment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = p.now()
	p.done = 0
	mode := ""
	if d.Pretend {
		mode = " (pretend)"
	}
	fmt.Fprintf(p.out, "%s %s%s\n", d.Pipeline, shortID(d.ID), mode)
}

func (p *progressPrinter) TaskFinished(_ domain.Deployment, r orchestrator.Result) {
	if r.Depth != 1 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	fmt.Fprintf(p.out, "  [%*d/%d] %-16s %-8s %6.2fs │ %s\n",
		len(fmt.Sprint(p.total)), p.done, p.total, r.Task, label(r), r.Duration.Seconds(),
		p.eta(p.now()))
}

func (p *progressPrinter) DeploymentFinished(d domain.Deployment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s in %s\n", d.Pipeline, strings.ToLower(string(d.Verdict)),
		d.Duration().Round(time.Millisecond))
}

func label(r orchestrator.Result) string {
	switch r.Verdict {
	case domain.VerdictSuccess:
		return "[ok]"
	case domain.VerdictHalted:
		return "[halt]"
	default:
		return "[fail]"
	}
}

// eta extrapolates the remaining time from the share of finished steps.
func (p *progressPrinter) eta(now time.Time) string {
	if p.total <= 0 || p.done <= 0 {
		return "ETA --"
	}
	if p.done >= p.total {
		return "ETA 0s"
	}

	elapsed := now.Sub(p.started).Seconds()
	if elapsed < 1 {
		return "ETA --"
	}

	pct := float64(p.done) / float64(p.total)
	remaining := elapsed/pct - elapsed
	if remaining < 0 {
		remaining = 0
	}

	if remaining < 60 {
		return fmt.Sprintf("ETA %ds", int(remaining))
	}
	if remaining < 3600 {
		return fmt.Sprintf("ETA %dm%ds", int(remaining)/60, int(remaining)%60)
	}
	return fmt.Sprintf("ETA %dh%dm", int(remaining)/3600, (int(remaining)%3600)/60)
}
