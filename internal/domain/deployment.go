package domain

import "time"

// Deployment is one run of a pipeline against a target.
type Deployment struct {
	ID            string    `json:"id"`
	Application   string    `json:"application"`
	Pipeline      string    `json:"pipeline"`
	Release       string    `json:"release"`
	Pretend       bool      `json:"pretend"`
	Verdict       Verdict   `json:"verdict,omitempty"`
	FailedTask    string    `json:"failed_task,omitempty"`
	LastCompleted string    `json:"last_completed,omitempty"`
	Message       string    `json:"message,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
}

// IsFinished returns true once a verdict has been recorded.
func (d *Deployment) IsFinished() bool {
	return d.Verdict != ""
}

// Duration returns how long the deployment took (0 while running).
func (d *Deployment) Duration() time.Duration {
	if d.StartedAt.IsZero() || d.FinishedAt.IsZero() {
		return 0
	}
	return d.FinishedAt.Sub(d.StartedAt)
}

// Paths is the on-target layout a deployment works in.
type Paths struct {
	// Root is stable across releases: <root>/releases, <root>/shared, <root>/current.
	Root string
	// Release is the directory of the release being built.
	Release string
}

// ReleasesDir returns <root>/releases.
func (p Paths) ReleasesDir() string { return joinPath(p.Root, "releases") }

// SharedDir returns <root>/shared.
func (p Paths) SharedDir() string { return joinPath(p.Root, "shared") }

// CurrentLink returns <root>/current, the externally visible release pointer.
func (p Paths) CurrentLink() string { return joinPath(p.Root, "current") }

// LockFile returns <root>/deploy.lock.
func (p Paths) LockFile() string { return joinPath(p.Root, "deploy.lock") }

// ReleaseName formats the release directory name for t (YYYYMMDDhhmmss).
func ReleaseName(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// joinPath joins with "/" regardless of the local OS: paths live on the target.
func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	if base[len(base)-1] == '/' {
		return base + elem
	}
	return base + "/" + elem
}
