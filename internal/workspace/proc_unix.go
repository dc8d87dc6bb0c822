//go:build !windows

package workspace

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the spawned process in its own process group so that the
// agent and everything it forks can be killed together.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the whole process group. On Unix the group ID
// equals the PID of the group leader; a negative PID targets the group.
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}
