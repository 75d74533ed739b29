// Package health provides periodic checks of the deployment target and the
// history database, with optional recovery actions.
package health

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/guoyu07/rocketeer/internal/domain"
	"github.com/guoyu07/rocketeer/internal/infra/metrics"
)

// DefaultStaleLockAge is how old a deploy.lock must be before it is reported.
const DefaultStaleLockAge = time.Hour

// Pinger is satisfied by the history database.
type Pinger interface {
	Ping() error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	now      func() time.Time
}

// NewChecker creates a checker for the application rooted at root. db may be
// nil when history is disabled.
func NewChecker(db Pinger, root string) *Checker {
	c := &Checker{
		interval: 60 * time.Second,
		now:      time.Now,
	}
	if db != nil {
		c.checks = append(c.checks, Check{
			Name: "history",
			CheckFn: func(ctx context.Context) error {
				return db.Ping()
			},
		})
	}
	paths := domain.Paths{Root: root}
	c.checks = append(c.checks,
		Check{
			Name: "root_directory",
			CheckFn: func(ctx context.Context) error {
				return checkDir(root)
			},
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(root, 0755)
			},
		},
		Check{
			Name: "deploy_lock",
			CheckFn: func(ctx context.Context) error {
				return checkLock(paths.LockFile(), DefaultStaleLockAge, c.now())
			},
		},
	)
	return c
}

// AddCheck appends a custom check.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and stores the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{Name: check.Name, CheckedAt: c.now()}
		err := check.CheckFn(ctx)
		if err != nil && check.RecoverFn != nil {
			if rerr := check.RecoverFn(ctx); rerr != nil {
				log.Printf("[health] recover %s: %v", check.Name, rerr)
			} else {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				err = check.CheckFn(ctx)
			}
		}
		if err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		metrics.SetHealth(check.Name, s.Healthy)
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()

	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// checkLock reports a lock file older than maxAge. A missing lock is healthy.
func checkLock(path string, maxAge time.Duration, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("check lock: %w", err)
	}
	if age := now.Sub(info.ModTime()); age > maxAge {
		return fmt.Errorf("%s held for %s; run the unlock task if no deployment is running",
			path, age.Truncate(time.Second))
	}
	return nil
}
