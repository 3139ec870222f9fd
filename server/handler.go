package server

import (
	"bytes"
	"context"
	"net"

	"github.com/joeycumines/logiface"
)

// MaxMessageSize is the largest message exchanged by [UpperCaseHandler] and
// [Exchange].
const MaxMessageSize = 1024

// Handler serves a single accepted connection. The connection is closed
// after ServeConn returns. The context is cancelled when the server stops.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to a [Handler].
type HandlerFunc func(ctx context.Context, conn net.Conn) error

// ServeConn calls f(ctx, conn).
func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// UpperCaseHandler reads a single message, of up to [MaxMessageSize] bytes,
// and writes it back, trimmed of surrounding whitespace, and upper-cased.
type UpperCaseHandler struct {
	Logger *logiface.Logger[logiface.Event]
}

// ServeConn implements [Handler].
func (h *UpperCaseHandler) ServeConn(_ context.Context, conn net.Conn) error {
	buf := make([]byte, MaxMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	data := bytes.TrimSpace(buf[:n])

	h.Logger.Info().
		Str(`remote`, conn.RemoteAddr().String()).
		Str(`data`, string(data)).
		Log(`received message`)

	_, err = conn.Write(bytes.ToUpper(data))
	return err
}
