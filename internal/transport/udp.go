package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/espif/internal/errors"
)

// multicastTTL limits multicast commands to a few router hops.
const multicastTTL = 3

// udpChannel is an unconnected UDP socket that sends every datagram to
// peer. In unicast mode only datagrams from peer's address are accepted;
// in multicast mode any source is.
//
// Replies to a multicast command arrive from the device's unicast address
// rather than the group, so the socket is never connect(2)ed.
type udpChannel struct {
	conn      *net.UDPConn
	peer      netip.AddrPort
	multicast bool
	logger    *slog.Logger
}

// openUDP binds an ephemeral local port and prepares it for talking to
// addr.
//
// Process:
//  1. Bind 0.0.0.0:0 (or [::]:0 for IPv6 peers), enabling SO_BROADCAST
//  2. For multicast, set TTL/hop limit and join the peer's group
//
// A bind failure is returned as *errors.BindError. Broadcast and multicast
// option failures are logged and otherwise ignored.
func (d *NetDialer) openUDP(addr netip.AddrPort) (Channel, error) {
	network, laddr := "udp4", "0.0.0.0:0"
	if !addr.Addr().Is4() {
		network, laddr = "udp", "[::]:0"
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setBroadcast(fd)
			}); err != nil {
				return err
			}
			if sockErr != nil {
				d.opts.Logger.Debug("cannot enable broadcast",
					"component", "transport",
					"error", sockErr,
				)
			}
			return nil
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, laddr)
	if err != nil {
		return nil, &errors.BindError{Err: err}
	}
	conn := pc.(*net.UDPConn)

	if d.opts.Multicast {
		d.joinGroup(conn, addr.Addr())
	}

	return &udpChannel{
		conn:      conn,
		peer:      addr,
		multicast: d.opts.Multicast,
		logger:    d.opts.Logger,
	}, nil
}

// joinGroup sets the multicast TTL and joins group on all interfaces.
func (d *NetDialer) joinGroup(conn *net.UDPConn, group netip.Addr) {
	groupAddr := &net.UDPAddr{IP: net.IP(group.AsSlice())}

	var ttlErr, joinErr error
	if group.Unmap().Is4() {
		p := ipv4.NewPacketConn(conn)
		ttlErr = p.SetMulticastTTL(multicastTTL)
		joinErr = p.JoinGroup(nil, groupAddr)
	} else {
		p := ipv6.NewPacketConn(conn)
		ttlErr = p.SetMulticastHopLimit(multicastTTL)
		joinErr = p.JoinGroup(nil, groupAddr)
	}

	if ttlErr != nil {
		d.opts.Logger.Debug("cannot set multicast ttl",
			"component", "transport",
			"group", group,
			"error", ttlErr,
		)
	}
	if joinErr != nil {
		d.opts.Logger.Debug("cannot join multicast group",
			"component", "transport",
			"group", group,
			"error", joinErr,
		)
	}
}

func (c *udpChannel) Kind() Kind {
	return UDP
}

func (c *udpChannel) Send(p []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return &errors.NetworkError{Operation: "set write deadline", Err: err}
	}

	n, err := c.conn.WriteToUDPAddrPort(p, c.peer)
	if err != nil {
		return &errors.NetworkError{
			Operation: "send",
			Err:       err,
			Details:   fmt.Sprintf("to %s", c.peer),
		}
	}
	if n != len(p) {
		return &errors.NetworkError{
			Operation: "send",
			Err:       io.ErrShortWrite,
			Details:   fmt.Sprintf("%d/%d bytes", n, len(p)),
		}
	}
	return nil
}

func (c *udpChannel) Receive(p []byte, timeout time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return 0, &errors.NetworkError{Operation: "set read deadline", Err: err}
	}

	// Strays share the deadline set above.
	for {
		n, src, err := c.conn.ReadFromUDPAddrPort(p)
		if err != nil {
			return n, &errors.NetworkError{Operation: "receive", Err: err}
		}

		if !c.multicast && src.Addr().Unmap() != c.peer.Addr().Unmap() {
			c.logger.Debug("ignoring datagram",
				"component", "transport",
				"from", src,
				"bytes", n,
			)
			continue
		}

		c.logger.Debug("received datagram",
			"component", "transport",
			"from", src,
			"bytes", n,
		)
		return n, nil
	}
}

func (c *udpChannel) Close() error {
	return c.conn.Close()
}
