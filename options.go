// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package eventfd

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// defaultPollInterval bounds how long [Event.Wait] blocks in poll(2) before
// checking its context again.
const defaultPollInterval = 50 * time.Millisecond

// eventOptions holds configuration options for Event creation.
type eventOptions struct {
	logger       *logiface.Logger[logiface.Event]
	pollInterval time.Duration
	pipe         bool
}

// --- Event Options ---

// EventOption configures an Event instance.
type EventOption interface {
	applyEvent(*eventOptions) error
}

// eventOptionImpl implements EventOption.
type eventOptionImpl struct {
	applyEventFunc func(*eventOptions) error
}

func (e *eventOptionImpl) applyEvent(opts *eventOptions) error {
	return e.applyEventFunc(opts)
}

// WithPipe forces the event to use a self-pipe rather than an eventfd.
// Platforms other than Linux always use a pipe.
func WithPipe(enabled bool) EventOption {
	return &eventOptionImpl{func(opts *eventOptions) error {
		opts.pipe = enabled
		return nil
	}}
}

// WithLogger attaches a logger to the event. Nil disables logging (the
// default).
func WithLogger(logger *logiface.Logger[logiface.Event]) EventOption {
	return &eventOptionImpl{func(opts *eventOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithPollInterval sets the maximum time [Event.Wait] blocks in a single
// poll(2) call, which bounds how quickly it observes context cancellation.
// It must be positive.
func WithPollInterval(d time.Duration) EventOption {
	return &eventOptionImpl{func(opts *eventOptions) error {
		if d <= 0 {
			return errors.New("eventfd: poll interval must be positive")
		}
		opts.pollInterval = d
		return nil
	}}
}

// resolveEventOptions applies EventOption instances to eventOptions.
func resolveEventOptions(opts []EventOption) (*eventOptions, error) {
	cfg := &eventOptions{
		pollInterval: defaultPollInterval,
		pipe:         !eventfdSupported,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyEvent(cfg); err != nil {
			return nil, err
		}
	}
	if !eventfdSupported {
		cfg.pipe = true
	}
	return cfg, nil
}
