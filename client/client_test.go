package client

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joshuafuller/espif/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// withDialer replaces the socket dialer.
func withDialer(d transport.Dialer) Option {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

// withSleep replaces the retry delay sleep.
func withSleep(sleep func(time.Duration)) Option {
	return func(c *Client) error {
		c.sleep = sleep
		return nil
	}
}

// staticLookup answers every lookup with ips, or fails with err.
type staticLookup struct {
	ips   []net.IP
	err   error
	hosts []string
}

func (l *staticLookup) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	l.hosts = append(l.hosts, host)
	return l.ips, l.err
}

// refusingDialer fails every dial and counts them.
type refusingDialer struct {
	dials []netip.AddrPort
}

func (d *refusingDialer) Dial(_ transport.Kind, addr netip.AddrPort) (transport.Channel, error) {
	d.dials = append(d.dials, addr)
	return nil, stderrors.New("connection refused")
}

// silentDialer opens channels that accept the command and never answer.
type silentDialer struct {
	kinds []transport.Kind
}

func (d *silentDialer) Dial(kind transport.Kind, _ netip.AddrPort) (transport.Channel, error) {
	d.kinds = append(d.kinds, kind)
	return &silentChannel{kind: kind}, nil
}

type silentChannel struct {
	kind transport.Kind
}

func (c *silentChannel) Kind() transport.Kind                       { return c.kind }
func (c *silentChannel) Send([]byte, time.Duration) error           { return nil }
func (c *silentChannel) Receive([]byte, time.Duration) (int, error) { return 0, os.ErrDeadlineExceeded }
func (c *silentChannel) Close() error                               { return nil }

func TestNew_Options(t *testing.T) {
	bad := DefaultConfig()
	bad.SendAttempts = 0

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"defaults", nil, false},
		{"valid config", []Option{WithConfig(DefaultConfig())}, false},
		{"invalid config", []Option{WithConfig(bad)}, true},
		{"nil logger", []Option{WithLogger(nil)}, true},
		{"nil resolver", []Option{WithResolver(nil)}, true},
		{"nil trace hook", []Option{WithTraceHook(nil)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts...)
			if tt.wantErr {
				var validationErr *ValidationError
				assert.ErrorAs(t, err, &validationErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestCommand_EmptyHost(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	_, err = c.Command("", []byte("x"))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "host", validationErr.Field)
}

func TestAttemptCommand_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = -1

	reply, err := AttemptCommand(cfg, "127.0.0.1", []byte("x"))
	assert.Nil(t, reply)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCommand_ResolutionFailureIsTerminal(t *testing.T) {
	lookup := &staticLookup{err: stderrors.New("no such host")}
	dialer := &refusingDialer{}

	c, err := New(WithResolver(lookup), withDialer(dialer))
	require.NoError(t, err)

	_, err = c.Command("missing.lan", []byte("x"))

	var resolveErr *ResolutionError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "missing.lan: cannot resolve (no such host)", err.Error())
	assert.Equal(t, []string{"missing.lan"}, lookup.hosts)
	assert.Empty(t, dialer.dials, "no socket work after failed resolution")
}

func TestCommand_UsesResolvedAddress(t *testing.T) {
	lookup := &staticLookup{ips: []net.IP{net.ParseIP("192.0.2.7")}}
	dialer := &refusingDialer{}

	cfg := DefaultConfig()
	cfg.ForceTCP = true
	cfg.SendAttempts = 1
	cfg.ConnectAttempts = 1
	cfg.Port = 2424

	c, err := New(WithConfig(cfg), WithResolver(lookup), withDialer(dialer))
	require.NoError(t, err)

	_, err = c.Command("esp.lan", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("192.0.2.7:2424")}, dialer.dials)
}

func TestCommand_IPv6FamilyMapsIPv4(t *testing.T) {
	lookup := &staticLookup{ips: []net.IP{net.ParseIP("192.0.2.7")}}
	dialer := &refusingDialer{}

	cfg := DefaultConfig()
	cfg.Family = FamilyIPv6
	cfg.ForceTCP = true
	cfg.SendAttempts = 1
	cfg.ConnectAttempts = 1

	c, err := New(WithConfig(cfg), WithResolver(lookup), withDialer(dialer))
	require.NoError(t, err)

	_, _ = c.Command("esp.lan", []byte("x"))
	require.Len(t, dialer.dials, 1)
	assert.Equal(t, "[::ffff:192.0.2.7]:24", dialer.dials[0].String())
}

// TestCommand_UnreachableDelays verifies the retry delay bookkeeping
// against an unreachable peer.
func TestCommand_UnreachableDelays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceTCP = true

	var delays []time.Duration
	dialer := &refusingDialer{}
	c, err := New(WithConfig(cfg), withDialer(dialer), withSleep(func(d time.Duration) {
		delays = append(delays, d)
	}))
	require.NoError(t, err)

	_, err = c.Command("10.0.0.9", []byte("x"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)

	// 4*(2-1) + (4-1)
	assert.Len(t, delays, 7)
	assert.Len(t, dialer.dials, 8)
	assert.Equal(t,
		"10.0.0.9: no more attempts (connection refused)",
		err.Error())
}

func TestCommand_LoggingFollowsVerbose(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		cfg := DefaultConfig()
		cfg.Verbose = verbose
		cfg.ForceTCP = true
		cfg.SendAttempts = 1
		cfg.ConnectAttempts = 1

		c, err := New(WithConfig(cfg), WithLogger(logger), withDialer(&refusingDialer{}))
		require.NoError(t, err)
		_, _ = c.Command("10.0.0.9", []byte("x"))

		if verbose {
			assert.Contains(t, buf.String(), "session_id=")
			assert.Contains(t, buf.String(), "connect failed")
		} else {
			assert.Empty(t, buf.String())
		}
	}
}

// TestCommand_MulticastStaysOnUDP verifies a multicast call never falls
// back to TCP, even when TCP was requested.
func TestCommand_MulticastStaysOnUDP(t *testing.T) {
	for _, forceTCP := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.Multicast = true
		cfg.ForceTCP = forceTCP
		cfg.SendAttempts = 2

		dialer := &silentDialer{}
		c, err := New(WithConfig(cfg), withDialer(dialer), withSleep(func(time.Duration) {}))
		require.NoError(t, err)

		_, err = c.Command("239.255.42.99", []byte("x"))

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, []transport.Kind{transport.UDP, transport.UDP}, dialer.kinds)
	}
}
