//go:build windows

package runner

import (
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; the child is not waited on past exit.
func setSysProcAttr(cmd *exec.Cmd) {}

// isRoot reports false so elevated commands keep their sudo prefix; no
// supported platform command elevates on Windows.
func isRoot() bool {
	return false
}
