package eventfd

import (
	"errors"
	"syscall"
)

// Standard errors.
var (
	// ErrAllocation matches (via [errors.Is]) any [*AllocationError].
	ErrAllocation = errors.New("eventfd: allocation failed")
	// ErrClosed is returned by operations on a closed [Event].
	ErrClosed = errors.New("eventfd: closed")
)

// AllocationError is returned when the kernel refuses to allocate a new
// descriptor, e.g. because the process descriptor table is full (EMFILE),
// the system-wide limit was hit (ENFILE), or the platform doesn't support
// eventfd (ENOSYS).
//
// Example:
//
//	fd, err := eventfd.Create()
//	if errors.Is(err, unix.EMFILE) {
//	    // too many open files
//	}
type AllocationError struct {
	// Syscall is the name of the failed system call, e.g. "eventfd" or "pipe".
	Syscall string
	// Errno is the error code reported by the kernel.
	Errno syscall.Errno
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return e.Syscall + ": " + e.Errno.Error()
}

// Unwrap returns the underlying errno for use with [errors.Is] and [errors.As].
func (e *AllocationError) Unwrap() error {
	return e.Errno
}

// Is reports true for [ErrAllocation].
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}

// newAllocationError converts the error returned by an allocating system
// call. Errors that aren't an errno are passed through unchanged.
func newAllocationError(name string, err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return err
	}
	return &AllocationError{Syscall: name, Errno: errno}
}
