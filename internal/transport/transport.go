// Package transport provides the channels a command session talks over.
//
// A Channel is one open socket to the device: a TCP stream or an unbound
// UDP datagram socket aimed at the device (or its multicast group). The
// session decides which kind to open; this package only knows how to open,
// use and close one.
//
// Every blocking call takes an explicit timeout that is applied as a socket
// deadline, so no operation here can block without bound.
package transport

import (
	stderrors "errors"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"
)

// Kind identifies the transport protocol of a Channel.
type Kind int

const (
	// TCP is a stream connection.
	TCP Kind = iota

	// UDP is a datagram socket, optionally joined to a multicast group.
	UDP
)

// String returns "tcp" or "udp".
func (k Kind) String() string {
	switch k {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Channel is one open socket to a device.
//
// Implementations:
//   - tcpChannel: connected TCP stream
//   - udpChannel: bound UDP socket sending to a fixed peer
type Channel interface {
	// Kind reports the transport protocol.
	Kind() Kind

	// Send writes p in a single operation, waiting at most timeout for the
	// socket to accept it. A short write is an error.
	Send(p []byte, timeout time.Duration) error

	// Receive reads the next chunk into p, waiting at most timeout.
	//
	// Returns:
	//   - int: bytes read (a whole datagram for UDP)
	//   - error: timeout (see IsTimeout), io.EOF on an orderly TCP close,
	//     or a NetworkError
	Receive(p []byte, timeout time.Duration) (int, error)

	// Close releases the socket.
	Close() error
}

// Dialer opens channels. Session code depends on this interface so tests
// can script channel behaviour.
type Dialer interface {
	Dial(kind Kind, addr netip.AddrPort) (Channel, error)
}

// Options configures a NetDialer.
type Options struct {
	// ConnectTimeout bounds the TCP handshake.
	ConnectTimeout time.Duration

	// Multicast makes UDP channels join the group given by the peer
	// address.
	Multicast bool

	// Logger receives socket option failures and datagram sources.
	Logger *slog.Logger
}

// NetDialer opens real sockets.
type NetDialer struct {
	opts Options
}

// NewDialer returns a NetDialer.
func NewDialer(opts Options) *NetDialer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &NetDialer{opts: opts}
}

// Dial opens a channel of the given kind to addr.
//
// UDP bind failures are returned as *errors.BindError; every other failure
// is an *errors.NetworkError.
func (d *NetDialer) Dial(kind Kind, addr netip.AddrPort) (Channel, error) {
	if kind == TCP {
		return d.dialTCP(addr)
	}
	return d.openUDP(addr)
}

// IsTimeout reports whether err is a socket deadline expiry.
func IsTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// deadline converts a timeout to an absolute socket deadline.
func deadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}
