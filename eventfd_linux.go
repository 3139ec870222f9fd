//go:build linux

package eventfd

import (
	"golang.org/x/sys/unix"
)

// sysEventfd is the eventfd(2) system call, replaced by tests.
var sysEventfd = unix.Eventfd

// createFd calls eventfd(0, 0): blocking mode, no semaphore mode, and no
// close-on-exec.
func createFd() (int, error) {
	fd, err := sysEventfd(0, 0)
	if err != nil {
		return -1, newAllocationError(`eventfd`, err)
	}
	return fd, nil
}

// eventfdSupported reports whether createFd may succeed on this platform.
const eventfdSupported = true
