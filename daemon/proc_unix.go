//go:build unix

package daemon

import (
	"os/exec"
	"syscall"
)

// pidAlive probes a process with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// detach places the worker in its own session so it survives the CLI exit.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminate asks a worker to shut down.
func terminate(pid int) {
	_ = syscall.Kill(pid, syscall.SIGTERM)
}
