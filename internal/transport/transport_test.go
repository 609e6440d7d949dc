package transport

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/joshuafuller/espif/internal/errors"
)

const testTimeout = 500 * time.Millisecond

func TestKind_String(t *testing.T) {
	assert.Equal(t, "tcp", TCP.String())
	assert.Equal(t, "udp", UDP.String())
	assert.Equal(t, "unknown", Kind(7).String())
}

// TestTCPChannel_RoundTrip sends a command to a loopback listener and reads
// the reply back.
func TestTCPChannel_RoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(append([]byte("ok "), buf[:n]...))
	}()

	addr := netip.MustParseAddrPort(ln.Addr().String())
	ch, err := NewDialer(Options{ConnectTimeout: testTimeout}).Dial(TCP, addr)
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()

	assert.Equal(t, TCP, ch.Kind())
	require.NoError(t, ch.Send([]byte("stats\r\n"), testTimeout))

	buf := make([]byte, 64)
	n, err := ch.Receive(buf, testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "ok stats\r\n", string(buf[:n]))

	<-done
	_, err = ch.Receive(buf, testTimeout)
	assert.ErrorIs(t, err, io.EOF)
}

// TestTCPChannel_ReceiveTimeout verifies a silent peer yields a timeout.
func TestTCPChannel_ReceiveTimeout(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	addr := netip.MustParseAddrPort(ln.Addr().String())
	ch, err := NewDialer(Options{ConnectTimeout: testTimeout}).Dial(TCP, addr)
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()
	defer func() {
		select {
		case conn := <-accepted:
			_ = conn.Close()
		case <-time.After(testTimeout):
		}
	}()

	start := time.Now()
	_, err = ch.Receive(make([]byte, 16), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "want timeout, got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// TestTCPDial_Refused verifies a closed port surfaces as a NetworkError.
func TestTCPDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := netip.MustParseAddrPort(ln.Addr().String())
	require.NoError(t, ln.Close())

	_, err = NewDialer(Options{ConnectTimeout: testTimeout}).Dial(TCP, addr)

	var netErr *errors.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "connect tcp", netErr.Operation)
}

// TestUDPChannel_RoundTrip exchanges datagrams with a loopback peer.
func TestUDPChannel_RoundTrip(t *testing.T) {
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer func() { _ = peer.Close() }()

	go func() {
		buf := make([]byte, 64)
		n, src, err := peer.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _ = peer.WriteToUDP(append([]byte("echo "), buf[:n]...), src)
	}()

	addr := netip.MustParseAddrPort(peer.LocalAddr().String())
	ch, err := NewDialer(Options{ConnectTimeout: testTimeout}).Dial(UDP, addr)
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()

	assert.Equal(t, UDP, ch.Kind())
	require.NoError(t, ch.Send([]byte("ping"), testTimeout))

	buf := make([]byte, 64)
	n, err := ch.Receive(buf, testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "echo ping", string(buf[:n]))

	_, err = ch.Receive(buf, 20*time.Millisecond)
	assert.True(t, IsTimeout(err), "want timeout, got %v", err)
}

// TestUDPChannel_MulticastOptionsNonFatal verifies that requesting
// multicast towards a unicast address still yields a usable channel.
func TestUDPChannel_MulticastOptionsNonFatal(t *testing.T) {
	d := NewDialer(Options{ConnectTimeout: testTimeout, Multicast: true})

	ch, err := d.Dial(UDP, netip.MustParseAddrPort("127.0.0.1:9"))
	require.NoError(t, err)
	assert.NoError(t, ch.Close())
}

// TestUDPChannel_MulticastJoin dials a group address and checks the socket
// carries the multicast TTL and receives traffic sent to the group.
func TestUDPChannel_MulticastJoin(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDialer(Options{ConnectTimeout: testTimeout, Multicast: true, Logger: logger})

	group := netip.MustParseAddr("239.255.42.99")
	ch, err := d.Dial(UDP, netip.AddrPortFrom(group, 4242))
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()

	conn := ch.(*udpChannel).conn
	ttl, err := ipv4.NewPacketConn(conn).MulticastTTL()
	require.NoError(t, err)
	assert.Equal(t, multicastTTL, ttl)
	assert.NotContains(t, logs.String(), "cannot set multicast ttl")

	if strings.Contains(logs.String(), "cannot join multicast group") {
		t.Skipf("no multicast capable interface: %s", logs.String())
	}

	sender, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer func() { _ = sender.Close() }()
	require.NoError(t, ipv4.NewPacketConn(sender).SetMulticastLoopback(true))

	local := netip.MustParseAddrPort(conn.LocalAddr().String())
	dst := &net.UDPAddr{IP: net.IP(group.AsSlice()), Port: int(local.Port())}
	if _, err := sender.WriteToUDP([]byte("to the group"), dst); err != nil {
		t.Skipf("cannot send to multicast group: %v", err)
	}

	buf := make([]byte, 64)
	n, err := ch.Receive(buf, testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "to the group", string(buf[:n]))
}

// TestUDPChannel_SourceFilter verifies unicast channels drop datagrams
// from addresses other than the peer while multicast channels accept them.
func TestUDPChannel_SourceFilter(t *testing.T) {
	stranger, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2)})
	if err != nil {
		t.Skipf("cannot bind 127.0.0.2: %v", err)
	}
	defer func() { _ = stranger.Close() }()

	tests := []struct {
		name      string
		multicast bool
		wantFirst string
	}{
		{"unicast ignores stranger", false, "from peer"},
		{"multicast accepts stranger", true, "from stranger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			require.NoError(t, err)
			defer func() { _ = peer.Close() }()

			addr := netip.MustParseAddrPort(peer.LocalAddr().String())
			ch, err := NewDialer(Options{ConnectTimeout: testTimeout, Multicast: tt.multicast}).Dial(UDP, addr)
			require.NoError(t, err)
			defer func() { _ = ch.Close() }()

			local := netip.MustParseAddrPort(ch.(*udpChannel).conn.LocalAddr().String())
			dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(local.Port())}

			_, err = stranger.WriteToUDP([]byte("from stranger"), dst)
			require.NoError(t, err)
			_, err = peer.WriteToUDP([]byte("from peer"), dst)
			require.NoError(t, err)

			buf := make([]byte, 64)
			n, err := ch.Receive(buf, testTimeout)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirst, string(buf[:n]))
		})
	}
}

// TestUDPChannel_StrangerOnlyTimesOut verifies a unicast channel that only
// hears from other hosts reports a timeout.
func TestUDPChannel_StrangerOnlyTimesOut(t *testing.T) {
	stranger, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2)})
	if err != nil {
		t.Skipf("cannot bind 127.0.0.2: %v", err)
	}
	defer func() { _ = stranger.Close() }()

	ch, err := NewDialer(Options{ConnectTimeout: testTimeout}).Dial(UDP, netip.MustParseAddrPort("127.0.0.1:9"))
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()

	local := netip.MustParseAddrPort(ch.(*udpChannel).conn.LocalAddr().String())
	_, err = stranger.WriteToUDP([]byte("spoofed"), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(local.Port())})
	require.NoError(t, err)

	_, err = ch.Receive(make([]byte, 64), 50*time.Millisecond)
	assert.True(t, IsTimeout(err), "want timeout, got %v", err)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(io.EOF))
	assert.False(t, IsTimeout(stderrors.New("boom")))
	assert.True(t, IsTimeout(&errors.NetworkError{Operation: "read", Err: timeoutErr{}}))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
