package shell

import (
	"os/exec"
	"syscall"
)

// configureProcess hides the console window of the shell on Windows.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
	}
}
