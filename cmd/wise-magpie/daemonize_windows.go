//go:build windows

package main

import "os/exec"

// setDetached is a no-op on Windows; CREATE_NEW_PROCESS_GROUP support
// isn't wired up since wise-magpie's flock-based singleton and Unix
// control socket aren't supported there either.
func setDetached(cmd *exec.Cmd) {}
