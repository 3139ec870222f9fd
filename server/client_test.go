package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentListener accepts connections, and never replies.
func silentListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen(`tcp`, `127.0.0.1:0`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var conns []net.Conn
		defer func() {
			for _, conn := range conns {
				_ = conn.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	return ln
}

func TestExchange_Cancelled(t *testing.T) {
	ln := silentListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Exchange(ctx, ln.Addr().String(), []byte(`hello`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchange_Deadline(t *testing.T) {
	ln := silentListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Exchange(ctx, ln.Addr().String(), []byte(`hello`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExchange_DialError(t *testing.T) {
	ln, err := net.Listen(`tcp`, `127.0.0.1:0`)
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Exchange(context.Background(), addr, []byte(`hello`))
	assert.Error(t, err)
}
