//go:build linux

package executor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr places the child in its own process group and ties its
// lifetime to the worker process.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGKILL,
	}
}

// killProcessGroup sends SIGKILL to the whole group so interpreter and VM
// children die with the leader.
func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// peakRSSKB reads the max resident set size from rusage. Linux reports
// Maxrss in kilobytes.
func peakRSSKB(state *os.ProcessState) int64 {
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return 0
	}
	return rusage.Maxrss
}
