//go:build linux

package child

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr arranges for the child to receive SIGKILL when
// the managing process dies, so a crashed supervisor leaves no orphans.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
