//go:build !linux

package executor

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func killProcessGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}

// peakRSSKB is unavailable without rusage; memory accounting reports zero
// and the memory limit is not enforced on this platform.
func peakRSSKB(_ *os.ProcessState) int64 {
	return 0
}
