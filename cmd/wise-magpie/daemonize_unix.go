//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setDetached puts the relaunched daemon in its own session so it
// survives the launching terminal closing.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
