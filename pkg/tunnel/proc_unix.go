//go:build !windows

package tunnel

import (
	"os"
	"syscall"
)

// checkProcessAlive checks if a process is still running.
func checkProcessAlive(process *os.Process) error {
	return process.Signal(syscall.Signal(0))
}
