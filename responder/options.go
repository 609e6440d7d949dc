package responder

import (
	"log/slog"
	"time"

	"github.com/joshuafuller/espif/internal/errors"
)

// Option is a functional option for configuring a Responder.
//
// Options are applied by New before any socket is bound.
//
// Example:
//
//	resp, err := responder.New(
//	    responder.WithTCPOnly(),
//	    responder.WithInitialDelay(200*time.Millisecond),
//	)
type Option func(*Responder) error

// WithAddress sets the listening IP address. The default is 127.0.0.1.
func WithAddress(address string) Option {
	return func(r *Responder) error {
		if address == "" {
			return &errors.ValidationError{Field: "address", Value: address, Message: "must not be empty"}
		}
		r.address = address
		return nil
	}
}

// WithHandler sets the function computing replies. The default is Echo.
func WithHandler(h Handler) Option {
	return func(r *Responder) error {
		if h == nil {
			return &errors.ValidationError{Field: "handler", Value: nil, Message: "must not be nil"}
		}
		r.handler = h
		return nil
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) error {
		if logger == nil {
			return &errors.ValidationError{Field: "logger", Value: nil, Message: "must not be nil"}
		}
		r.logger = logger
		return nil
	}
}

// WithTCPOnly disables the UDP listener, so UDP commands go unanswered.
func WithTCPOnly() Option {
	return func(r *Responder) error {
		r.udpEnabled = false
		r.tcpEnabled = true
		return nil
	}
}

// WithUDPOnly disables the TCP listener, so TCP connects are refused.
func WithUDPOnly() Option {
	return func(r *Responder) error {
		r.tcpEnabled = false
		r.udpEnabled = true
		return nil
	}
}

// WithChunks splits every reply into writes (or datagrams) of at most size
// bytes, separated by gap.
func WithChunks(size int, gap time.Duration) Option {
	return func(r *Responder) error {
		if size < 1 {
			return &errors.ValidationError{Field: "chunk size", Value: size, Message: "must be at least 1"}
		}
		if gap < 0 {
			return &errors.ValidationError{Field: "chunk gap", Value: gap, Message: "must not be negative"}
		}
		r.chunkSize = size
		r.chunkGap = gap
		return nil
	}
}

// WithInitialDelay waits d before the first byte of every reply.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Responder) error {
		if d < 0 {
			return &errors.ValidationError{Field: "initial delay", Value: d, Message: "must not be negative"}
		}
		r.initialDelay = d
		return nil
	}
}

// WithEndMarker terminates every UDP reply with a single NUL datagram.
func WithEndMarker() Option {
	return func(r *Responder) error {
		r.endMarker = true
		return nil
	}
}

// WithDropFirst ignores the first n commands, whatever their transport.
// Dropped TCP connections are closed without a reply.
func WithDropFirst(n int) Option {
	return func(r *Responder) error {
		if n < 0 {
			return &errors.ValidationError{Field: "drop count", Value: n, Message: "must not be negative"}
		}
		r.dropFirst = n
		return nil
	}
}

// WithHoldOpen keeps TCP connections open after the reply until the client
// closes them.
func WithHoldOpen() Option {
	return func(r *Responder) error {
		r.holdOpen = true
		return nil
	}
}
