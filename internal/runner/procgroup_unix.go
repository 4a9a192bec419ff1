//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the engine in its own process group and makes
// context cancellation kill the whole group, so helpers the engine spawned
// do not outlive a timed-out case.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
