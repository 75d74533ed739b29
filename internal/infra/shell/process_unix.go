//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the shell in its own process group so cancellation
// kills everything it started, not just sh.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
