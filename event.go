//go:build unix

package eventfd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// pipePayload is written to (and read from) the pipe backend.
var pipePayload = []byte{'A'}

// Event is a boolean flag that has a file descriptor, which is readable if
// and only if the event is set. It implements the same operations as a
// condition-style event (Set, Clear, IsSet, Wait), but may also be combined
// with other descriptors, in poll, select, or epoll.
//
// The flag is process-local: only Set and Clear change it. Writes made
// directly to the descriptor by other parties will wake pollers, but won't
// be reflected by IsSet.
//
// Event is safe for concurrent use.
type Event struct {
	logger       *logiface.Logger[logiface.Event]
	payload      []byte
	readBuf      []byte
	pollInterval time.Duration
	backend      string

	// mu serializes Set, Clear, and Close.
	mu sync.Mutex
	// fdMu guards the descriptors against being closed mid-poll.
	fdMu sync.RWMutex

	readFd  int
	writeFd int

	flag   atomic.Bool
	closed atomic.Bool
}

// NewEvent allocates a new, unset event. Unless [WithPipe] is used, on Linux
// the event is backed by a single eventfd (see [Create]).
func NewEvent(opts ...EventOption) (*Event, error) {
	cfg, err := resolveEventOptions(opts)
	if err != nil {
		return nil, err
	}

	e := &Event{
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
	}

	if cfg.pipe {
		e.backend = `pipe`
		e.readFd, e.writeFd, err = createPipe()
		e.payload = pipePayload
	} else {
		e.backend = `eventfd`
		e.readFd, err = createFd()
		e.writeFd = e.readFd
		e.payload = make([]byte, 8)
		binary.NativeEndian.PutUint64(e.payload, 1)
	}
	if err != nil {
		e.logger.Err().
			Err(err).
			Str(`backend`, e.backend).
			Log(`event allocation failed`)
		return nil, err
	}
	e.readBuf = make([]byte, len(e.payload))

	e.logger.Debug().
		Str(`backend`, e.backend).
		Int(`fd`, e.readFd).
		Log(`event created`)

	return e, nil
}

// Fd returns the descriptor that becomes readable when the event is set.
// It must not be read from or closed directly. Once the event is closed, Fd
// returns -1, as the number may have been reused.
func (e *Event) Fd() int {
	if e.closed.Load() {
		return -1
	}
	return e.readFd
}

// IsSet reports whether the event's flag is set.
func (e *Event) IsSet() bool {
	return e.flag.Load()
}

// Set sets the flag, making the descriptor readable. All goroutines waiting
// on the event, or polling its descriptor, are woken. Setting an event that
// is already set is a no-op.
func (e *Event) Set() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if e.flag.Load() {
		return nil
	}

	// flag first, so woken pollers observe it
	e.flag.Store(true)
	n, err := writeFD(e.writeFd, e.payload)
	if err == nil && n != len(e.payload) {
		err = fmt.Errorf("short write (%d of %d bytes)", n, len(e.payload))
	}
	if err != nil {
		e.flag.Store(false)
		return fmt.Errorf("eventfd: set: %w", err)
	}

	e.logger.Trace().
		Int(`fd`, e.readFd).
		Log(`event set`)

	return nil
}

// Clear resets the flag, draining the descriptor so that it's no longer
// readable. Subsequent waits will block until Set is called again. Clearing
// an event that isn't set is a no-op.
func (e *Event) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if !e.flag.Load() {
		return nil
	}

	e.flag.Store(false)
	// guaranteed not to block, as Set wrote the payload
	if _, err := readFD(e.readFd, e.readBuf); err != nil {
		e.flag.Store(true)
		return fmt.Errorf("eventfd: clear: %w", err)
	}

	e.logger.Trace().
		Int(`fd`, e.readFd).
		Log(`event cleared`)

	return nil
}

// Wait blocks until the event is set, or the descriptor otherwise becomes
// readable, returning nil, or until ctx is done, returning ctx.Err().
// It returns immediately if the event is already set.
func (e *Event) Wait(ctx context.Context) error {
	for {
		if e.flag.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := e.pollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}

		ready, err := e.poll(timeout)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
	}
}

// WaitTimeout blocks until the event is set, or until the timeout elapses.
// A negative timeout blocks indefinitely. It returns the flag on exit, which
// is always true, unless the timeout elapsed.
func (e *Event) WaitTimeout(timeout time.Duration) (bool, error) {
	if e.flag.Load() {
		return true, nil
	}

	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return e.flag.Load(), err
	}
	return e.flag.Load(), nil
}

// Close releases the event's descriptors. It waits for in-flight polls to
// return. Subsequent operations return [ErrClosed]. Closing an already
// closed event is a no-op.
func (e *Event) Close() error {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		return nil
	}
	e.closed.Store(true)
	e.mu.Unlock()

	e.fdMu.Lock()
	defer e.fdMu.Unlock()

	err := closeFD(e.readFd)
	if e.writeFd != e.readFd {
		if err2 := closeFD(e.writeFd); err == nil {
			err = err2
		}
	}

	e.logger.Debug().
		Str(`backend`, e.backend).
		Int(`fd`, e.readFd).
		Log(`event closed`)

	return err
}

// poll waits for the read descriptor to become readable, rounding timeout
// up to whole milliseconds.
func (e *Event) poll(timeout time.Duration) (bool, error) {
	e.fdMu.RLock()
	defer e.fdMu.RUnlock()

	if e.closed.Load() {
		return false, ErrClosed
	}

	ms := int((timeout + time.Millisecond - 1) / time.Millisecond)
	if ms < 0 {
		ms = 0
	}

	return pollReadable(e.readFd, ms)
}
