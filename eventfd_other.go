//go:build unix && !linux

package eventfd

import (
	"golang.org/x/sys/unix"
)

// createFd always fails with ENOSYS, as eventfd(2) is Linux-specific.
func createFd() (int, error) {
	return -1, &AllocationError{Syscall: `eventfd`, Errno: unix.ENOSYS}
}

// eventfdSupported reports whether createFd may succeed on this platform.
const eventfdSupported = false
