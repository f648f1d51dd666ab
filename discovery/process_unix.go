//go:build !windows

package discovery

import (
	"errors"
	"os"
	"syscall"
)

// processAlive sends signal 0, which checks existence without delivering a signal
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
