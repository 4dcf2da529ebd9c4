//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processExists checks pid with signal 0
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: alive but owned by someone else
	return errors.Is(err, syscall.EPERM)
}
