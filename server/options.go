//go:build unix

package server

import (
	"errors"
	"time"

	"github.com/joeycumines/go-eventfd"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultReadTimeout is the default per-connection I/O deadline.
	DefaultReadTimeout = 5 * time.Second

	// acceptTimeout bounds an accept that was signalled by poll but would
	// block (e.g. the peer reset the connection before it was accepted).
	acceptTimeout = 50 * time.Millisecond
)

// serverOptions holds configuration options for Server creation.
type serverOptions struct {
	logger       *logiface.Logger[logiface.Event]
	acceptRates  map[time.Duration]int
	eventOptions []eventfd.EventOption
	readTimeout  time.Duration
}

// Option configures a Server instance.
type Option interface {
	applyServer(*serverOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyServerFunc func(*serverOptions) error
}

func (o *optionImpl) applyServer(opts *serverOptions) error {
	return o.applyServerFunc(opts)
}

// WithLogger attaches a logger to the server, which is also passed to its
// shutdown event.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithReadTimeout sets the deadline applied to each accepted connection.
// Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if d < 0 {
			return errors.New("server: read timeout must not be negative")
		}
		opts.readTimeout = d
		return nil
	}}
}

// WithAcceptRates limits accepted connections per remote IP, using
// sliding windows, e.g. {time.Second: 10, time.Minute: 100}. Connections
// over the limit are closed immediately. A nil or empty map disables
// limiting.
func WithAcceptRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		for window, limit := range rates {
			if window <= 0 || limit <= 0 {
				return errors.New("server: accept rates must be positive")
			}
		}
		opts.acceptRates = rates
		return nil
	}}
}

// WithEventOptions configures the shutdown event, see [eventfd.NewEvent].
func WithEventOptions(options ...eventfd.EventOption) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.eventOptions = append(opts.eventOptions, options...)
		return nil
	}}
}

// resolveOptions applies Option instances to serverOptions.
func resolveOptions(opts []Option) (*serverOptions, error) {
	cfg := &serverOptions{
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyServer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
