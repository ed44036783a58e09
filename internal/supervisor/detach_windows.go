//go:build windows

package supervisor

import "syscall"

// detachedAttrs starts the child in its own process group on Windows,
// where Setsid does not exist.
func detachedAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
