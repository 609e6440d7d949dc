// Package session implements the command delivery state machine.
//
// A Machine owns one call: it opens a channel to an already resolved
// address, sends the command, and collects the reply, retrying within two
// nested budgets:
//
//   - outer attempts (Config.SendAttempts): full connect+send+receive cycles
//   - inner connect attempts (Config.ConnectAttempts): channel
//     establishment tries inside each outer attempt
//
// RetryDelay is slept between attempts of either counter, never after the
// last one. The one exception is the transport downgrade: when a UDP send
// or first read fails and UDP is not forced, the current outer attempt is
// re-run over TCP immediately, without a delay and without consuming an
// attempt. The downgrade happens at most once per call.
//
// Replies are read in two phases. The first chunk may take up to
// InitialReceiveTimeout; every later chunk must follow within
// ReceiveTimeout, and silence at that point ends the reply successfully.
package session

import (
	stderrors "errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/joshuafuller/espif/internal/errors"
	"github.com/joshuafuller/espif/internal/trace"
	"github.com/joshuafuller/espif/internal/transport"
)

// readChunk is large enough for any UDP datagram.
const readChunk = 64 * 1024

// Config holds the per-call retry and timeout budget.
type Config struct {
	ConnectTimeout        time.Duration
	ConnectAttempts       int
	InitialReceiveTimeout time.Duration
	ReceiveTimeout        time.Duration
	RetryDelay            time.Duration
	SendAttempts          int
	ForceTCP              bool
	ForceUDP              bool

	// MaxReply caps the reply size in bytes; zero or less means no cap.
	MaxReply int
}

// Machine drives one command call. It is not safe for concurrent use and
// must not be reused after Run returns.
type Machine struct {
	cfg    Config
	host   string
	addr   netip.AddrPort
	dialer transport.Dialer

	logger *slog.Logger
	hook   trace.Hook
	id     string
	sleep  func(time.Duration)

	state      State
	kind       transport.Kind
	downgraded bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger for attempt and failure details.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithTraceHook sets the span receiver.
func WithTraceHook(h trace.Hook) Option {
	return func(m *Machine) {
		m.hook = h
	}
}

// WithSessionID sets the identifier attached to logs and spans.
func WithSessionID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithSleep replaces time.Sleep for retry delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Machine) {
		m.sleep = sleep
	}
}

// New returns a Machine that will deliver commands for host to addr using
// dialer.
func New(cfg Config, host string, addr netip.AddrPort, dialer transport.Dialer, opts ...Option) *Machine {
	m := &Machine{
		cfg:    cfg,
		host:   host,
		addr:   addr,
		dialer: dialer,
		logger: slog.Default(),
		sleep:  time.Sleep,
		state:  StateIdle,
		kind:   transport.UDP,
	}
	if cfg.ForceTCP {
		m.kind = transport.TCP
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Transport returns the transport currently selected.
func (m *Machine) Transport() transport.Kind {
	return m.kind
}

// Downgraded reports whether the call fell back from UDP to TCP.
func (m *Machine) Downgraded() bool {
	return m.downgraded
}

// Run delivers command and returns the reply.
//
// Returns:
//   - []byte: the reply exactly as received (never nil on success)
//   - error: *errors.ExhaustedError once every outer attempt failed, or a
//     terminal *errors.BindError / *errors.ReplyTooLargeError
func (m *Machine) Run(command []byte) ([]byte, error) {
	var lastErr error
	phase := errors.PhaseNoAttempts

	for attempt := 1; attempt <= m.cfg.SendAttempts; {
		reply, err := m.attempt(attempt, command)
		if err == nil {
			m.setState(StateDone)
			return reply, nil
		}

		if errors.IsTerminal(err) {
			m.setState(StateFailed)
			return nil, err
		}

		lastErr = err
		var connErr *errors.ConnectError
		if stderrors.As(err, &connErr) {
			phase = errors.PhaseNoAttempts
		} else {
			phase = errors.PhaseNoWrites
		}

		if m.canDowngrade(err) {
			m.kind = transport.TCP
			m.downgraded = true
			m.logger.Debug("falling back to tcp",
				"component", "session",
				"session_id", m.id,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		m.logger.Debug("attempt failed",
			"component", "session",
			"session_id", m.id,
			"transport", m.kind.String(),
			"attempt", attempt,
			"error", err,
		)

		attempt++
		if attempt <= m.cfg.SendAttempts {
			m.sleep(m.cfg.RetryDelay)
		}
	}

	m.setState(StateFailed)
	return nil, &errors.ExhaustedError{
		Host:  m.host,
		Phase: phase,
		Err:   lastErr,
	}
}

// canDowngrade reports whether err permits the one-time UDP to TCP switch.
// Only send and receive failures qualify; a UDP channel that could not be
// opened at all is retried as UDP.
func (m *Machine) canDowngrade(err error) bool {
	if m.kind != transport.UDP || m.cfg.ForceUDP || m.downgraded {
		return false
	}
	var transportErr *errors.TransportError
	return stderrors.As(err, &transportErr)
}

// attempt runs one outer attempt. The channel it opens is closed before it
// returns, whatever the outcome.
func (m *Machine) attempt(n int, command []byte) ([]byte, error) {
	ch, err := m.establish(n)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ch.Close(); err != nil {
			m.logger.Debug("close failed",
				"component", "session",
				"session_id", m.id,
				"error", err,
			)
		}
	}()
	m.setState(StateConnected)

	end := trace.Start(m.hook, m.id, trace.TagCommand)

	m.setState(StateSending)
	if err := ch.Send(command, m.cfg.ConnectTimeout); err != nil {
		return nil, &errors.TransportError{
			Host:      m.host,
			Op:        errors.PhaseSend,
			Transport: ch.Kind().String(),
			Err:       err,
		}
	}

	m.setState(StateReceiving)
	reply, err := m.receive(ch)
	if err != nil {
		return nil, err
	}

	end()
	return reply, nil
}

// establish opens a channel of the selected transport, trying up to
// ConnectAttempts times.
func (m *Machine) establish(outer int) (transport.Channel, error) {
	end := trace.Start(m.hook, m.id, trace.TagConnect)
	defer end()

	var lastErr error
	for try := 1; try <= m.cfg.ConnectAttempts; try++ {
		m.setState(StateConnecting)
		m.logger.Debug("connecting",
			"component", "session",
			"session_id", m.id,
			"transport", m.kind.String(),
			"attempt", outer,
			"connect_attempt", try,
		)

		ch, err := m.dialer.Dial(m.kind, m.addr)
		if err == nil {
			return ch, nil
		}

		var bindErr *errors.BindError
		if stderrors.As(err, &bindErr) {
			return nil, &errors.BindError{Host: m.host, Err: bindErr.Err}
		}

		lastErr = err
		m.logger.Debug("connect failed",
			"component", "session",
			"session_id", m.id,
			"transport", m.kind.String(),
			"connect_attempt", try,
			"error", err,
		)

		if try < m.cfg.ConnectAttempts {
			m.sleep(m.cfg.RetryDelay)
		}
	}

	return nil, &errors.ConnectError{
		Host:      m.host,
		Transport: m.kind.String(),
		Attempts:  m.cfg.ConnectAttempts,
		Err:       lastErr,
	}
}

// receive collects the reply.
//
// A failed or empty first read fails the attempt. A failed or empty later
// read ends the reply. On UDP a lone NUL datagram also ends the reply and
// is not part of it.
func (m *Machine) receive(ch transport.Channel) ([]byte, error) {
	reply := []byte{}
	buf := make([]byte, readChunk)

	for first := true; ; first = false {
		timeout := m.cfg.ReceiveTimeout
		if first {
			timeout = m.cfg.InitialReceiveTimeout
		}

		n, err := ch.Receive(buf, timeout)
		if n <= 0 {
			if first {
				if err == nil {
					err = errors.ErrEmptyReply
				}
				return nil, &errors.TransportError{
					Host:      m.host,
					Op:        errors.PhaseReceive,
					Transport: ch.Kind().String(),
					Err:       err,
				}
			}
			m.logger.Debug("end of reply",
				"component", "session",
				"session_id", m.id,
				"bytes", len(reply),
				"reason", err,
			)
			return reply, nil
		}

		if ch.Kind() == transport.UDP && n == 1 && buf[0] == 0 {
			m.logger.Debug("end of reply marker",
				"component", "session",
				"session_id", m.id,
				"bytes", len(reply),
			)
			return reply, nil
		}

		if m.cfg.MaxReply > 0 && len(reply)+n > m.cfg.MaxReply {
			return nil, &errors.ReplyTooLargeError{Host: m.host, Limit: m.cfg.MaxReply}
		}
		reply = append(reply, buf[:n]...)
	}
}

func (m *Machine) setState(s State) {
	m.state = s
}
