package orchestrator

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// registerBuiltins installs the framework defaults. Hook-only steps (primer,
// dependencies, test, migrate) are no-ops until a user registration
// replaces them.
func registerBuiltins(r *Registry) {
	builtins := map[string]Body{
		"primer":       Noop,
		"dependencies": Noop,
		"test":         Noop,
		"migrate":      Noop,

		"check":          Describe(Func(checkTask), "verify the root directory exists and is writable"),
		"setup":          Describe(Func(setupTask), "create the releases and shared directories"),
		"lock":           Describe(Func(lockTask), "take the deployment lock"),
		"unlock":         Describe(Func(unlockTask), "release the deployment lock"),
		"create-release": Describe(Func(createReleaseTask), "create the release directory"),
		"shared":         Describe(Func(sharedTask), "symlink shared folders into the release"),
		"permissions":    Describe(Func(permissionsTask), "chmod writable folders of the release"),
		"swap-symlink":   Describe(Func(swapSymlinkTask), "point current at the new release"),
		"cleanup":        Describe(Func(cleanupTask), "remove old releases"),
		"rollback":       Describe(Func(rollbackTask), "point current at the previous release"),
	}
	for name, body := range builtins {
		_ = r.RegisterBuiltin(name, body)
	}
}

func checkTask(c *Context) Outcome {
	root := c.Paths().Root
	if !c.RunInRoot(fmt.Sprintf("test -d %s && test -w %s", domain.ShellQuote(root), domain.ShellQuote(root))) {
		c.Haltf("root directory %s is missing or not writable", root)
	}
	return Inherit()
}

func setupTask(c *Context) Outcome {
	p := c.Paths()
	c.RunInRoot(fmt.Sprintf("mkdir -p %s %s", domain.ShellQuote(p.ReleasesDir()), domain.ShellQuote(p.SharedDir())))
	return Inherit()
}

func lockTask(c *Context) Outcome {
	lock := c.Paths().LockFile()
	if !c.RunInRoot("test ! -e " + domain.ShellQuote(lock)) {
		if last, _ := c.LastResult(); last.ExitCode == 1 {
			c.Haltf("%v: remove %s if no deployment is running", domain.ErrDeploymentLocked, lock)
		}
		return Inherit()
	}
	c.RunInRoot(fmt.Sprintf("echo %s > %s", domain.ShellQuote(c.Deployment().ID), domain.ShellQuote(lock)))
	return Inherit()
}

func unlockTask(c *Context) Outcome {
	c.RunInRoot("rm -f " + domain.ShellQuote(c.Paths().LockFile()))
	return Inherit()
}

func createReleaseTask(c *Context) Outcome {
	c.RunInRoot("mkdir -p " + domain.ShellQuote(c.Paths().Release))
	return Inherit()
}

func sharedTask(c *Context) Outcome {
	p := c.Paths()
	for _, rel := range c.Settings().Shared {
		rel = strings.Trim(rel, "/")
		if rel == "" {
			continue
		}
		shared := domain.ShellQuote(p.SharedDir() + "/" + rel)
		target := domain.ShellQuote(p.Release + "/" + rel)
		ok := c.RunInRoot(
			"mkdir -p "+shared,
			"mkdir -p "+domain.ShellQuote(path.Dir(p.Release+"/"+rel)),
			"rm -rf "+target,
			fmt.Sprintf("ln -s %s %s", shared, target),
		)
		if !ok {
			break
		}
	}
	return Inherit()
}

func permissionsTask(c *Context) Outcome {
	s := c.Settings()
	mode := s.Permissions
	if mode == "" {
		mode = "755"
	}
	for _, rel := range s.Writable {
		rel = strings.Trim(rel, "/")
		if rel == "" {
			continue
		}
		if !c.RunInRelease(fmt.Sprintf("chmod -R %s %s", mode, domain.ShellQuote(rel))) {
			break
		}
	}
	return Inherit()
}

func swapSymlinkTask(c *Context) Outcome {
	p := c.Paths()
	c.RunInRoot(fmt.Sprintf("ln -sfn %s %s", domain.ShellQuote(p.Release), domain.ShellQuote(p.CurrentLink())))
	return Inherit()
}

func cleanupTask(c *Context) Outcome {
	p := c.Paths()
	keep := []string{path.Base(p.Release)}
	if c.RunInRoot("readlink " + domain.ShellQuote(p.CurrentLink())) {
		if live, _ := c.LastResult(); strings.TrimSpace(live.Stdout) != "" {
			keep = append(keep, path.Base(strings.TrimSpace(live.Stdout)))
		}
	}

	if !c.RunInRoot("ls -1 " + domain.ShellQuote(p.ReleasesDir())) {
		return Inherit()
	}
	listing, _ := c.LastResult()
	stale := staleReleases(strings.Fields(listing.Stdout), c.Settings().KeepReleases, keep...)
	if len(stale) == 0 {
		return Inherit()
	}
	args := make([]string, len(stale))
	for i, name := range stale {
		args[i] = domain.ShellQuote(p.ReleasesDir() + "/" + name)
	}
	c.RunInRoot("rm -rf " + strings.Join(args, " "))
	return Inherit()
}

func rollbackTask(c *Context) Outcome {
	p := c.Paths()
	if !c.RunInRoot("readlink " + domain.ShellQuote(p.CurrentLink())) {
		c.Haltf("%s does not point at a release", p.CurrentLink())
		return Inherit()
	}
	live, _ := c.LastResult()
	current := path.Base(strings.TrimSpace(live.Stdout))

	if !c.RunInRoot("ls -1 " + domain.ShellQuote(p.ReleasesDir())) {
		return Inherit()
	}
	listing, _ := c.LastResult()
	prev := previousRelease(strings.Fields(listing.Stdout), current)
	if prev == "" {
		c.Halt(domain.ErrNoPreviousRelease.Error())
		return Inherit()
	}
	c.Logf("rolling back %s → %s", current, prev)
	c.RunInRoot(fmt.Sprintf("ln -sfn %s %s", domain.ShellQuote(p.ReleasesDir()+"/"+prev), domain.ShellQuote(p.CurrentLink())))
	return Inherit()
}

// staleReleases returns the releases cleanup removes: all but the newest
// keep, never including a protected one (the release being deployed and the
// one current points at).
func staleReleases(names []string, keep int, protected ...string) []string {
	if keep < 1 {
		keep = 1
	}
	sorted := append([]string(nil), names...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	if len(sorted) <= keep {
		return nil
	}
	var stale []string
	for _, name := range sorted[keep:] {
		if !slices.Contains(protected, name) {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale
}

// previousRelease returns the newest release older than current.
func previousRelease(names []string, current string) string {
	sorted := append([]string(nil), names...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	for _, name := range sorted {
		if name < current {
			return name
		}
	}
	return ""
}
