package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guoyu07/rocketeer/internal/api"
	"github.com/guoyu07/rocketeer/internal/app"
	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
	"github.com/guoyu07/rocketeer/internal/health"
	"github.com/guoyu07/rocketeer/internal/infra/shell"
	"github.com/guoyu07/rocketeer/internal/infra/sqlite"
)

// Options are the run flags that do not live in the project file.
type Options struct {
	Pretend bool
	Verbose bool
	Quiet   bool
	// Stream receives live command output; nil discards it.
	Stream io.Writer
	// Out receives pretend-mode command listings; nil means stdout.
	Out io.Writer
	// Version is reported by the HTTP API.
	Version string
	// Observers are notified alongside history and metrics.
	Observers []orchestrator.Observer
}

// Daemon is the rocketeer runtime. It wires together all services.
type Daemon struct {
	Config       Config
	DB           *sqlite.DB // nil when history is disabled
	Runner       domain.CommandRunner
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server
	Health       *health.Checker

	opts   Options
	logf   func(format string, args ...any)
	cancel context.CancelFunc
}

// New loads the project file at path (empty searches the working directory)
// and wires a Daemon for it.
func New(path string, opts Options) (*Daemon, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, opts: opts, logf: log.Printf}
	if opts.Quiet || cfg.Logging.Level == "quiet" {
		d.logf = func(string, ...any) {}
	}

	runner, err := d.buildRunner()
	if err != nil {
		return nil, err
	}
	d.Runner = runner

	root := cfg.Application.RootDirectory
	orchOpts := append(cfg.Project.Options(),
		orchestrator.WithLogger(d.logf),
		orchestrator.WithVerbose(opts.Verbose || cfg.Logging.Level == "debug"),
		orchestrator.WithPretend(opts.Pretend),
		orchestrator.WithObserver(app.MetricsRecorder{}),
	)
	for _, obs := range opts.Observers {
		orchOpts = append(orchOpts, orchestrator.WithObserver(obs))
	}

	if !cfg.History.Disabled {
		db, err := sqlite.Open(cfg.History.Dir)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.DB = db
		rec := app.NewHistoryRecorder(db)
		orchOpts = append(orchOpts, orchestrator.WithObserver(rec))
	}

	d.Orchestrator = orchestrator.New(runner, root, orchOpts...)
	if err := cfg.Project.Apply(d.Orchestrator); err != nil {
		d.Close()
		return nil, fmt.Errorf("apply project: %w", err)
	}

	var history domain.HistoryStore
	var pinger health.Pinger
	if d.DB != nil {
		history, pinger = d.DB, d.DB
	}
	d.Server = api.NewServer(d.Orchestrator, history)
	d.Server.EnableMetrics()
	if opts.Version != "" {
		d.Server.SetVersion(opts.Version)
	}
	d.Health = health.NewChecker(pinger, root)
	if !opts.Pretend {
		d.Health.AddCheck(shellCheck(cfg.Remote.Shell))
	}
	d.Server.SetHealth(d.Health)

	return d, nil
}

// shellCheck reports whether the shell commands run through can be found.
func shellCheck(name string) health.Check {
	return health.Check{
		Name: "shell",
		CheckFn: func(context.Context) error {
			if _, err := exec.LookPath(name); err != nil {
				return fmt.Errorf("shell %q: %w", name, err)
			}
			return nil
		},
	}
}

func (d *Daemon) buildRunner() (domain.CommandRunner, error) {
	if d.opts.Pretend {
		out := d.opts.Out
		if out == nil {
			out = os.Stdout
		}
		return shell.NewPretendRunner(out), nil
	}
	timeout, err := d.Config.Remote.CommandTimeout()
	if err != nil {
		return nil, err
	}
	r := shell.NewLocalRunner(d.Config.Remote.Shell, timeout)
	r.Env = d.Config.Remote.Env
	r.Stream = d.opts.Stream
	return r, nil
}

// Deploy runs the deploy pipeline and prunes old history.
func (d *Daemon) Deploy(ctx context.Context) (*orchestrator.Report, error) {
	report, err := d.Orchestrator.Deploy(ctx)
	d.prune()
	return report, err
}

// RunTask runs one task against the live release.
func (d *Daemon) RunTask(ctx context.Context, name string) (orchestrator.Result, error) {
	res, err := d.Orchestrator.RunTask(ctx, name)
	d.prune()
	return res, err
}

// Current returns the release <root>/current points at, or "" when none.
func (d *Daemon) Current(ctx context.Context) (string, error) {
	paths := domain.Paths{Root: d.Config.Application.RootDirectory}
	res, err := d.Runner.Run(ctx, paths.Root, "readlink "+domain.ShellQuote(paths.CurrentLink()))
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (d *Daemon) prune() {
	if d.DB == nil || d.Config.History.Keep <= 0 {
		return
	}
	n, err := d.DB.PruneDeployments(d.Config.History.Keep)
	if err != nil {
		d.logf("[daemon] prune history: %v", err)
		return
	}
	if n > 0 {
		d.logf("[daemon] pruned %d old deployments", n)
	}
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := d.Config.API.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("rocketeer serving on http://%s\n", addr)
	fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	if d.DB == nil {
		fmt.Println("  History: disabled")
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}
