// Package eventfd exposes the Linux eventfd(2) primitive, and a selectable
// event built on top of it.
//
// An eventfd is a kernel-managed 64-bit counter, exposed as a file
// descriptor. Writes add to the counter, reads atomically fetch and reset it,
// and the descriptor may be registered with poll, select, or epoll like any
// other I/O handle. That makes it a cheap way to wake a blocked poller from
// another goroutine, thread, or process.
//
// # Descriptor Factory
//
// [Create] allocates a new counter, with an initial value of 0, and no flags
// (blocking mode, no semaphore mode, no close-on-exec). The caller owns the
// returned descriptor, and must close it. [CreateContext] performs the same
// allocation on a separate goroutine, and resolves back to the caller, or
// abandons the result (closing the descriptor) if the context is done first.
//
// Allocation failures are reported as an [*AllocationError], carrying the
// kernel's errno. Use [errors.Is] with [ErrAllocation], or with a specific
// errno (e.g. unix.EMFILE), to match them.
//
// # Event
//
// [Event] models a boolean flag that has a file descriptor. Setting the event
// makes the descriptor readable, clearing it makes the descriptor not
// readable, which allows it to be combined with other descriptors in a single
// poll call. On Linux it is backed by an eventfd, elsewhere (or if
// [WithPipe] is used) by a self-pipe.
//
// # Logging
//
// Logging uses [github.com/joeycumines/logiface]. Package-level operations
// log via the logger configured using [SetLogger], events may be given their
// own logger via [WithLogger]. Logging is disabled by default.
package eventfd
