//go:build !windows

package sandbox

import (
	"errors"
	"os"
	"syscall"
)

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
