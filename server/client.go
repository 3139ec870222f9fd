package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
)

// Exchange connects to the TCP server at addr, sends msg, and returns the
// reply, of up to [MaxMessageSize] bytes, read until the server closes the
// connection.
func Exchange(ctx context.Context, addr string, msg []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, `tcp`, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	// unblock I/O if ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write(msg); err != nil {
		return nil, contextError(ctx, err)
	}

	reply, err := io.ReadAll(io.LimitReader(conn, MaxMessageSize))
	if err != nil {
		return nil, contextError(ctx, err)
	}
	return reply, nil
}

// contextError prefers the context's error, if it caused err.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	// the conn deadline may expire before the context notices
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}
