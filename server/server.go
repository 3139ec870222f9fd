//go:build unix

// Package server implements a TCP server, whose serve loop blocks in a single
// poll(2) call on both the listening socket and an [eventfd.Event], rather
// than periodically waking to check for shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-eventfd"
	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

var (
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server: closed")
	// ErrServing is returned by Serve if it's already running.
	ErrServing = errors.New("server: already serving")
)

// Server accepts TCP connections, dispatching each to a [Handler], until
// Shutdown or Close is called.
type Server struct {
	listener    *net.TCPListener
	handler     Handler
	logger      *logiface.Logger[logiface.Event]
	limiter     *catrate.Limiter
	stop        *eventfd.Event
	readTimeout time.Duration

	conns sync.WaitGroup

	mu      sync.Mutex
	done    chan struct{} // closed when not serving
	serving bool
	closed  bool
}

// New binds a TCP listener to addr, e.g. "127.0.0.1:0", and allocates the
// server's shutdown event.
func New(addr string, handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: nil handler")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	stop, err := eventfd.NewEvent(append([]eventfd.EventOption{eventfd.WithLogger(cfg.logger)}, cfg.eventOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("server: shutdown event: %w", err)
	}

	tcpAddr, err := net.ResolveTCPAddr(`tcp`, addr)
	if err != nil {
		_ = stop.Close()
		return nil, fmt.Errorf("server: %w", err)
	}
	listener, err := net.ListenTCP(`tcp`, tcpAddr)
	if err != nil {
		_ = stop.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		listener:    listener,
		handler:     handler,
		logger:      cfg.logger,
		stop:        stop,
		readTimeout: cfg.readTimeout,
		done:        make(chan struct{}),
	}
	close(s.done)

	if len(cfg.acceptRates) != 0 {
		s.limiter = catrate.NewLimiter(cfg.acceptRates)
	}

	s.logger.Info().
		Str(`addr`, listener.Addr().String()).
		Int(`stop_fd`, stop.Fd()).
		Log(`server listening`)

	return s, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve handles connections until Shutdown or Close is called, returning
// nil in that case. Each connection is served on its own goroutine. Serve
// waits for in-flight connections before returning.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.serving {
		s.mu.Unlock()
		return ErrServing
	}
	// cleared under mu, so a Shutdown that observes serving isn't lost
	if err := s.stop.Clear(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.serving = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		s.conns.Wait()
		s.mu.Lock()
		s.serving = false
		s.mu.Unlock()
		close(done)
		s.logger.Info().
			Str(`addr`, s.listener.Addr().String()).
			Log(`server stopped`)
	}()

	listenerFd, err := rawFd(s.listener)
	if err != nil {
		return err
	}

	fds := []unix.PollFd{
		{Fd: int32(s.stop.Fd()), Events: unix.POLLIN},
		{Fd: int32(listenerFd), Events: unix.POLLIN},
	}

	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("server: poll: %w", err)
		}

		if fds[0].Revents != 0 {
			return nil
		}

		if fds[1].Revents != 0 {
			if err := s.accept(ctx); err != nil {
				return err
			}
		}
	}
}

// Shutdown stops a running Serve, waiting for it (and in-flight connections)
// to finish, or for ctx to be done. It returns immediately if not serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	serving := s.serving
	s.mu.Unlock()

	if !serving {
		return nil
	}

	s.logger.Info().Log(`server shutdown requested`)

	if err := s.stop.Set(); err != nil && !errors.Is(err, eventfd.ErrClosed) {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any running Serve, then releases the listener and the
// shutdown event.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Shutdown(context.Background())
	if err2 := s.listener.Close(); err == nil {
		err = err2
	}
	if err2 := s.stop.Close(); err == nil {
		err = err2
	}
	return err
}

// accept accepts a single pending connection, and dispatches it.
func (s *Server) accept(ctx context.Context) error {
	// poll reported readiness, but the connection may already be gone
	if err := s.listener.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
		return err
	}

	conn, err := s.listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return ErrServerClosed
		}
		s.logger.Warning().
			Err(err).
			Log(`accept failed`)
		return nil
	}

	if s.limiter != nil {
		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if next, ok := s.limiter.Allow(host); !ok {
			s.logger.Warning().
				Str(`remote`, host).
				Time(`next`, next).
				Log(`connection rate limited`)
			_ = conn.Close()
			return nil
		}
	}

	s.conns.Add(1)
	go s.serveConn(ctx, conn)

	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.readTimeout))
	}

	if err := s.handler.ServeConn(ctx, conn); err != nil {
		s.logger.Warning().
			Err(err).
			Str(`remote`, conn.RemoteAddr().String()).
			Log(`handler failed`)
	}
}

// rawFd returns the descriptor of the listening socket. It remains valid
// for as long as the listener is open.
func rawFd(l *net.TCPListener) (int, error) {
	rc, err := l.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := rc.Control(func(v uintptr) { fd = int(v) }); err != nil {
		return -1, err
	}
	return fd, nil
}
