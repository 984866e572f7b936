//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func detach(_ *exec.Cmd) {}

func terminate(pid int) {
	if process, err := os.FindProcess(pid); err == nil {
		_ = process.Kill()
	}
}
