//go:build unix

package eventfd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const setDelay = 100 * time.Millisecond

// forEachBackend runs fn against every backend supported by the platform.
func forEachBackend(t *testing.T, fn func(t *testing.T, newEvent func(t *testing.T) *Event)) {
	t.Helper()
	backends := []struct {
		name string
		pipe bool
	}{
		{`pipe`, true},
	}
	if eventfdSupported {
		backends = append(backends, struct {
			name string
			pipe bool
		}{`eventfd`, false})
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, func(t *testing.T) *Event {
				t.Helper()
				e, err := NewEvent(WithPipe(b.pipe), WithPollInterval(10*time.Millisecond))
				require.NoError(t, err)
				t.Cleanup(func() { _ = e.Close() })
				return e
			})
		})
	}
}

// setAfter sets e after a delay, from another goroutine.
func setAfter(t *testing.T, e *Event, d time.Duration) {
	t.Helper()
	go func() {
		time.Sleep(d)
		if err := e.Set(); err != nil {
			t.Errorf("Set failed: %v", err)
		}
	}()
}

// readable polls the given descriptors, returning those that are readable.
// It may be called from any goroutine.
func readable(t *testing.T, timeout time.Duration, fds ...int) []int {
	t.Helper()
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		_, err := unix.Poll(pfds, ms)
		if err == unix.EINTR {
			continue
		}
		if !assert.NoError(t, err) {
			return nil
		}
		break
	}
	var out []int
	for _, p := range pfds {
		if p.Revents&unix.POLLIN != 0 {
			out = append(out, int(p.Fd))
		}
	}
	return out
}

func TestEvent_StartsNotSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		assert.False(t, e.IsSet())
		assert.Empty(t, readable(t, 0, e.Fd()))
	})
}

func TestEvent_NotSetBlocks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		start := time.Now()
		assert.Empty(t, readable(t, 2*setDelay, e.Fd()))
		assert.GreaterOrEqual(t, time.Since(start), 2*setDelay-10*time.Millisecond)
		assert.False(t, e.IsSet())
	})
}

func TestEvent_SetStopsPoll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		setAfter(t, e, setDelay)

		start := time.Now()
		assert.Equal(t, []int{e.Fd()}, readable(t, 5*time.Second, e.Fd()))
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.True(t, e.IsSet())
	})
}

func TestEvent_SetDoesNotBlockPoll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		require.NoError(t, e.Set())

		start := time.Now()
		assert.Equal(t, []int{e.Fd()}, readable(t, 2*time.Second, e.Fd()))
		assert.Less(t, time.Since(start), time.Second)
		assert.True(t, e.IsSet())
	})
}

func TestEvent_Wait(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		setAfter(t, e, setDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, e.Wait(ctx))
		assert.GreaterOrEqual(t, time.Since(start), setDelay-10*time.Millisecond)
		assert.True(t, e.IsSet())
	})
}

func TestEvent_WaitContextCancelled(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(setDelay)
			cancel()
		}()

		assert.ErrorIs(t, e.Wait(ctx), context.Canceled)
		assert.False(t, e.IsSet())
	})
}

func TestEvent_WaitTimeout(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		start := time.Now()
		set, err := e.WaitTimeout(setDelay)
		require.NoError(t, err)
		assert.False(t, set)
		assert.GreaterOrEqual(t, time.Since(start), setDelay-10*time.Millisecond)
		assert.False(t, e.IsSet())
	})
}

func TestEvent_WaitReturnsFlag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		set, err := e.WaitTimeout(setDelay)
		require.NoError(t, err)
		assert.False(t, set)

		require.NoError(t, e.Set())

		set, err = e.WaitTimeout(setDelay)
		require.NoError(t, err)
		assert.True(t, set)
	})
}

func TestEvent_WaitTimeoutNegativeBlocksUntilSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		setAfter(t, e, setDelay)

		set, err := e.WaitTimeout(-1)
		require.NoError(t, err)
		assert.True(t, set)
	})
}

func TestEvent_TwoWaiters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		var wg sync.WaitGroup
		done := make([]bool, 2)
		for i := range done {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if got := readable(t, 5*time.Second, e.Fd()); len(got) == 1 {
					done[i] = true
				}
			}()
		}

		require.NoError(t, e.Set())
		wg.Wait()
		assert.Equal(t, []bool{true, true}, done)
	})
}

func TestEvent_TwoEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e1 := newEvent(t)
		e2 := newEvent(t)
		setAfter(t, e1, setDelay)

		assert.Equal(t, []int{e1.Fd()}, readable(t, 5*time.Second, e1.Fd(), e2.Fd()))
		assert.True(t, e1.IsSet())
		assert.False(t, e2.IsSet())
	})
}

func TestEvent_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		require.NoError(t, e.Set())
		assert.True(t, e.IsSet())
		require.NoError(t, e.Clear())
		assert.False(t, e.IsSet())
		assert.Empty(t, readable(t, 0, e.Fd()))

		setAfter(t, e, setDelay)
		assert.Equal(t, []int{e.Fd()}, readable(t, 5*time.Second, e.Fd()))
		assert.True(t, e.IsSet())
	})
}

func TestEvent_ClearNotSetIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		// would block forever if it attempted a read
		require.NoError(t, e.Clear())
		assert.False(t, e.IsSet())
	})
}

func TestEvent_SetTwice(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		require.NoError(t, e.Set())
		assert.True(t, e.IsSet())
		require.NoError(t, e.Set())
		assert.True(t, e.IsSet())
	})
}

func TestEvent_SetTwiceAndClearWillBlock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		require.NoError(t, e.Set())
		require.NoError(t, e.Set())
		require.NoError(t, e.Clear())

		assert.Empty(t, readable(t, setDelay/2, e.Fd()))

		setAfter(t, e, setDelay)
		assert.Equal(t, []int{e.Fd()}, readable(t, 5*time.Second, e.Fd()))
		assert.True(t, e.IsSet())
	})
}

func TestEvent_Close(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)
		assert.GreaterOrEqual(t, e.Fd(), 0)
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())
		assert.Equal(t, -1, e.Fd())

		assert.ErrorIs(t, e.Set(), ErrClosed)
		assert.ErrorIs(t, e.Clear(), ErrClosed)
		assert.ErrorIs(t, e.Wait(context.Background()), ErrClosed)

		_, err := e.WaitTimeout(time.Second)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestEvent_CloseWhileWaiting(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		errCh := make(chan error, 1)
		go func() { errCh <- e.Wait(context.Background()) }()

		time.Sleep(setDelay / 2)
		require.NoError(t, e.Close())

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("Wait did not return after Close")
		}
	})
}

func TestEvent_ConcurrentSetClear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newEvent func(t *testing.T) *Event) {
		e := newEvent(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					if j%2 == 0 {
						assert.NoError(t, e.Set())
					} else {
						assert.NoError(t, e.Clear())
					}
				}
			}()
		}
		wg.Wait()

		// the descriptor must agree with the flag
		require.NoError(t, e.Clear())
		assert.Empty(t, readable(t, 0, e.Fd()))
		require.NoError(t, e.Set())
		assert.Equal(t, []int{e.Fd()}, readable(t, 0, e.Fd()))
	})
}

func TestNewEvent_PipeBackend(t *testing.T) {
	e, err := NewEvent(WithPipe(true))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, `pipe`, e.backend)
	assert.NotEqual(t, e.readFd, e.writeFd)

	for _, fd := range []int{e.readFd, e.writeFd} {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		require.NoError(t, err)
		assert.NotZero(t, flags&unix.FD_CLOEXEC, "pipe fd %d should be close-on-exec", fd)
	}
}
