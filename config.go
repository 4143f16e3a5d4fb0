// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package connio

import "time"

// Config configures a Manager.
type Config struct {
	// Backlog is defaulted and kept in the resolved Config, but the
	// accept registry does not read it: every listening socket is bound
	// with the registry's fixed defaultBacklog (128).
	Backlog int

	// NIOThreads is the number of I/O threads the dispatch thread hands
	// accepted/connected sockets off to, round robin. Must be >= 1.
	NIOThreads int

	// MinimumBufferSize is the initial size of a connection's read and
	// write buffers.
	MinimumBufferSize int

	// MaximumBufferSize is the largest a connection's read or write
	// buffer is permitted to grow to before ErrFrameTooLarge is raised.
	MaximumBufferSize int

	// SelectTimeoutMs bounds how long a thread blocks in its selector
	// between inbox drains.
	SelectTimeoutMs int

	// DeferredWriteHighWaterMark is the number of queued deferred writes
	// at which an onBackpressure OOB event is raised.
	DeferredWriteHighWaterMark int

	// AcceptRateLimit, if non-nil, caps accepts per bound address over
	// the given rolling windows (window duration -> max accepts).
	AcceptRateLimit map[time.Duration]int
}

// Option mutates a resolved Config. Unlike the teacher's loop options,
// Config fields are public; Option exists for construction-time
// validation and defaulting via functional composition.
type Option interface {
	applyConfig(*Config) error
}

type optionFunc func(*Config) error

func (f optionFunc) applyConfig(c *Config) error { return f(c) }

// WithNIOThreads sets the number of I/O threads.
func WithNIOThreads(n int) Option {
	return optionFunc(func(c *Config) error {
		if n < 1 {
			return &ArgumentError{Message: "NIOThreads must be >= 1"}
		}
		c.NIOThreads = n
		return nil
	})
}

// WithBufferSizes sets the minimum and maximum connection buffer sizes.
func WithBufferSizes(minimum, maximum int) Option {
	return optionFunc(func(c *Config) error {
		if minimum <= 0 || maximum < minimum {
			return &ArgumentError{Message: "invalid buffer size range"}
		}
		c.MinimumBufferSize = minimum
		c.MaximumBufferSize = maximum
		return nil
	})
}

// WithSelectTimeout sets the selector poll timeout.
func WithSelectTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) error {
		if d <= 0 {
			return &ArgumentError{Message: "select timeout must be positive"}
		}
		c.SelectTimeoutMs = int(d.Milliseconds())
		return nil
	})
}

// WithAcceptRateLimit configures per-address accept rate limiting.
func WithAcceptRateLimit(rates map[time.Duration]int) Option {
	return optionFunc(func(c *Config) error {
		c.AcceptRateLimit = rates
		return nil
	})
}

func resolveConfig(cfg Config, opts []Option) (Config, error) {
	if cfg.NIOThreads == 0 {
		cfg.NIOThreads = 1
	}
	if cfg.MinimumBufferSize == 0 {
		cfg.MinimumBufferSize = 4096
	}
	if cfg.MaximumBufferSize == 0 {
		cfg.MaximumBufferSize = 1 << 20
	}
	if cfg.SelectTimeoutMs == 0 {
		cfg.SelectTimeoutMs = 100
	}
	if cfg.DeferredWriteHighWaterMark == 0 {
		cfg.DeferredWriteHighWaterMark = 256
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = 128
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyConfig(&cfg); err != nil {
			return cfg, err
		}
	}
	if cfg.NIOThreads < 1 {
		return cfg, &ArgumentError{Message: "NIOThreads must be >= 1"}
	}
	if cfg.MaximumBufferSize < cfg.MinimumBufferSize {
		return cfg, &ArgumentError{Message: "MaximumBufferSize must be >= MinimumBufferSize"}
	}
	return cfg, nil
}

// ConnConfig configures a single Connection.
type ConnConfig struct {
	// MinimumBufferSize/MaximumBufferSize override the Manager's Config
	// defaults for this connection when non-zero.
	MinimumBufferSize int
	MaximumBufferSize int
}
