//go:build windows

package workspace

import "os/exec"

// setProcAttr is a no-op on Windows, which uses job objects rather than
// POSIX process groups.
func setProcAttr(cmd *exec.Cmd) {
}

// killProcessGroup is a no-op on Windows; cmd.Process.Kill handles the
// direct child.
func killProcessGroup(pid int) error {
	return nil
}
