//go:build windows

package sandbox

import "os"

// FindProcess opens a handle on windows and fails when the pid is gone
func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
