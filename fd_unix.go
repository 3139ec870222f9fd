//go:build unix

package eventfd

import (
	"golang.org/x/sys/unix"
)

// readFD reads from a file descriptor, retrying on EINTR.
func readFD(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// writeFD writes to a file descriptor, retrying on EINTR.
func writeFD(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// pollReadable waits up to timeoutMs (negative blocks indefinitely) for fd to
// become readable. EINTR is reported as not ready, leaving the caller to
// recompute its timeout. A descriptor that is no longer open reports
// [ErrClosed].
func pollReadable(fd int, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, ErrClosed
	}
	return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// createPipe creates a self-pipe, with both ends close-on-exec.
// Returns the read end and the write end.
func createPipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, newAllocationError(`pipe`, err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds[0], fds[1], nil
}
