package transport

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/joshuafuller/espif/internal/errors"
)

type tcpChannel struct {
	conn *net.TCPConn
}

// dialTCP connects to addr within the connect timeout, then checks the
// socket's pending error so a handshake that completed with an error is
// reported as a connect failure.
func (d *NetDialer) dialTCP(addr netip.AddrPort) (Channel, error) {
	dialer := net.Dialer{Timeout: d.opts.ConnectTimeout}

	conn, err := dialer.Dial("tcp", addr.String())
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "connect tcp",
			Err:       err,
		}
	}

	tcpConn := conn.(*net.TCPConn)
	if err := pendingError(tcpConn); err != nil {
		_ = tcpConn.Close()
		return nil, &errors.NetworkError{
			Operation: "connect tcp",
			Err:       err,
			Details:   "pending socket error",
		}
	}

	return &tcpChannel{conn: tcpConn}, nil
}

func (c *tcpChannel) Kind() Kind {
	return TCP
}

func (c *tcpChannel) Send(p []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return &errors.NetworkError{Operation: "set write deadline", Err: err}
	}

	n, err := c.conn.Write(p)
	if err != nil {
		return &errors.NetworkError{Operation: "write", Err: err}
	}
	if n != len(p) {
		return &errors.NetworkError{
			Operation: "write",
			Err:       io.ErrShortWrite,
			Details:   fmt.Sprintf("%d/%d bytes", n, len(p)),
		}
	}
	return nil
}

func (c *tcpChannel) Receive(p []byte, timeout time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return 0, &errors.NetworkError{Operation: "set read deadline", Err: err}
	}

	n, err := c.conn.Read(p)
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, &errors.NetworkError{Operation: "read", Err: err}
	}
	return n, nil
}

func (c *tcpChannel) Close() error {
	return c.conn.Close()
}
