// Package client delivers a single text command to an embedded device and
// returns its reply.
//
// A call resolves the host, then runs the command session: it tries UDP
// first (unless TCP is forced), falls back to TCP once if UDP gets no
// answer, and retries within the attempt and timeout budget of Config.
//
// Example:
//
//	reply, err := client.AttemptCommand(client.DefaultConfig(), "esp.lan", []byte("stats\r\n"))
//	if err != nil {
//	    log.Fatal(err) // esp.lan: no more write attempts (...)
//	}
//	fmt.Print(string(reply))
package client

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshuafuller/espif/internal/errors"
	"github.com/joshuafuller/espif/internal/resolver"
	"github.com/joshuafuller/espif/internal/session"
	"github.com/joshuafuller/espif/internal/trace"
	"github.com/joshuafuller/espif/internal/transport"
)

// Client sends commands with a fixed configuration. Calls share no state,
// so a Client may be used from several goroutines at once.
type Client struct {
	cfg    Config
	logger *slog.Logger
	hook   trace.Hook
	lookup resolver.Lookup

	// dialer and sleep are replaced in tests.
	dialer transport.Dialer
	sleep  func(time.Duration)
}

// New returns a Client using DefaultConfig unless WithConfig is given.
//
// Returns:
//   - *Client: ready for Command
//   - error: the first option error, typically *ValidationError
func New(opts ...Option) (*Client, error) {
	c := &Client{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Config returns the configuration in use.
func (c *Client) Config() Config {
	return c.cfg
}

// Command sends command to host and returns the reply.
//
// The command is sent verbatim; callers append any line terminator the
// device expects. The reply is returned exactly as received and is
// non-nil (possibly empty) on success.
//
// Returns:
//   - []byte: the reply
//   - error: *ValidationError, *ResolutionError, *BindError,
//     *ReplyTooLargeError or *ExhaustedError; Error() is the diagnostic
//     "<host>: <phase> (<cause>)"
func (c *Client) Command(host string, command []byte) ([]byte, error) {
	if host == "" {
		return nil, &errors.ValidationError{Field: "host", Value: host, Message: "must not be empty"}
	}

	id := uuid.NewString()
	logger := c.callLogger()
	logger.Debug("sending command",
		"component", "espif",
		"session_id", id,
		"host", host,
		"port", c.cfg.Port,
		"bytes", len(command),
	)

	end := trace.Start(c.hook, id, trace.TagResolve)
	addr, err := resolver.New(c.lookup, c.cfg.Family, c.cfg.ResolveTimeout).Resolve(host, c.cfg.Port)
	end()
	if err != nil {
		logger.Debug("resolve failed",
			"component", "espif",
			"session_id", id,
			"host", host,
			"error", err,
		)
		return nil, err
	}

	dialer := c.dialer
	if dialer == nil {
		dialer = transport.NewDialer(transport.Options{
			ConnectTimeout: c.cfg.ConnectTimeout,
			Multicast:      c.cfg.Multicast,
			Logger:         logger,
		})
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithTraceHook(c.hook),
		session.WithSessionID(id),
	}
	if c.sleep != nil {
		opts = append(opts, session.WithSleep(c.sleep))
	}

	m := session.New(c.sessionConfig(), host, addr, dialer, opts...)
	reply, err := m.Run(command)
	if err != nil {
		logger.Debug("command failed",
			"component", "espif",
			"session_id", id,
			"address", addr,
			"state", m.State().String(),
			"error", err,
		)
		return nil, err
	}

	logger.Debug("command done",
		"component", "espif",
		"session_id", id,
		"address", addr,
		"transport", m.Transport().String(),
		"downgraded", m.Downgraded(),
		"bytes", len(reply),
	)
	return reply, nil
}

// AttemptCommand sends command to host using cfg.
//
// It is shorthand for New(WithConfig(cfg)) followed by Command.
func AttemptCommand(cfg Config, host string, command []byte) ([]byte, error) {
	c, err := New(WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	return c.Command(host, command)
}

// callLogger returns the configured logger, or one that drops everything
// when Verbose is off.
func (c *Client) callLogger() *slog.Logger {
	if !c.cfg.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger
}

// sessionConfig maps Config onto the session budget. A multicast group
// cannot be reached over TCP, so Multicast forces UDP.
func (c *Client) sessionConfig() session.Config {
	forceTCP, forceUDP := c.cfg.ForceTCP, c.cfg.ForceUDP
	if c.cfg.Multicast {
		forceTCP, forceUDP = false, true
	}
	return session.Config{
		ConnectTimeout:        c.cfg.ConnectTimeout,
		ConnectAttempts:       c.cfg.ConnectAttempts,
		InitialReceiveTimeout: c.cfg.InitialReceiveTimeout,
		ReceiveTimeout:        c.cfg.ReceiveTimeout,
		RetryDelay:            c.cfg.RetryDelay,
		SendAttempts:          c.cfg.SendAttempts,
		ForceTCP:              forceTCP,
		ForceUDP:              forceUDP,
		MaxReply:              c.cfg.MaxReply,
	}
}
