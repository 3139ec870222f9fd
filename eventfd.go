//go:build unix

package eventfd

import (
	"context"

	"golang.org/x/sys/unix"
)

// Create allocates a new eventfd counter, initialised to 0, with no flags, and
// returns the descriptor. The caller is responsible for closing it.
//
// The underlying system call is made from the calling goroutine. The Go
// runtime hands off the OS thread for the duration of the call, so other
// goroutines continue to run. Failures are reported as [*AllocationError],
// and are never retried.
func Create() (int, error) {
	fd, err := createFd()
	logger := getLogger()
	if err != nil {
		logger.Err().
			Err(err).
			Str(`syscall`, `eventfd`).
			Log(`eventfd allocation failed`)
		return -1, err
	}
	logger.Debug().
		Int(`fd`, fd).
		Log(`eventfd allocated`)
	return fd, nil
}

// CreateContext is like [Create], but performs the allocation on a separate
// goroutine, returning ctx.Err() if the context is done before the result
// arrives. In that case, any descriptor that is allocated afterwards is
// closed, rather than leaked.
func CreateContext(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	type result struct {
		fd  int
		err error
	}

	ch := make(chan result, 1)
	go func() {
		fd, err := Create()
		ch <- result{fd, err}
	}()

	select {
	case r := <-ch:
		return r.fd, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = unix.Close(r.fd)
			}
		}()
		return -1, ctx.Err()
	}
}
