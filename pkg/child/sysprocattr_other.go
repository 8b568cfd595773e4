//go:build unix && !linux

package child

import "os/exec"

// Parent-death signalling needs prctl, which only Linux provides.
func configureCmdSysProcAttr(cmd *exec.Cmd) {}
