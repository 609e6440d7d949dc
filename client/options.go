package client

import (
	"log/slog"

	"github.com/joshuafuller/espif/internal/errors"
)

// Option is a functional option for configuring a Client.
//
// Options are applied in order by New; the first one returning an error
// aborts construction.
//
// Example:
//
//	c, err := client.New(
//	    client.WithConfig(cfg),
//	    client.WithLogger(logger),
//	)
type Option func(*Client) error

// WithConfig replaces the default configuration.
//
// Returns:
//   - Option: fails with *ValidationError if cfg does not validate
func WithConfig(cfg Config) Option {
	return func(c *Client) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger used when Config.Verbose is on. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return &errors.ValidationError{Field: "logger", Value: nil, Message: "must not be nil"}
		}
		c.logger = logger
		return nil
	}
}

// WithTraceHook receives a Span for the resolve, connect and command phases
// of every call. A nil hook disables tracing.
func WithTraceHook(h TraceHook) Option {
	return func(c *Client) error {
		c.hook = h
		return nil
	}
}

// WithResolver replaces the system resolver, e.g. with a *net.Resolver
// pointed at a specific DNS server.
func WithResolver(lookup Lookup) Option {
	return func(c *Client) error {
		if lookup == nil {
			return &errors.ValidationError{Field: "resolver", Value: nil, Message: "must not be nil"}
		}
		c.lookup = lookup
		return nil
	}
}
