//go:build !windows

package supervisor

import "syscall"

// detachedAttrs puts the child into its own session so it survives the
// parent exiting, matching daemon-mode launch.
func detachedAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
