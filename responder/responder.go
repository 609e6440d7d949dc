// Package responder emulates a command-driven embedded device on the local
// host.
//
// A Responder listens on one port for both TCP and UDP, like the devices
// the client talks to, and answers every command through a Handler. Its
// options reproduce the behaviours that make real devices awkward: slow
// first replies, replies split over several packets, an explicit UDP
// end-of-reply marker, lost commands, and TCP connections left open after
// the reply.
//
// Example:
//
//	resp, err := responder.New(
//	    responder.WithHandler(func(cmd []byte) []byte { return []byte("OK\r\n") }),
//	    responder.WithEndMarker(),
//	)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = resp.Close() }()
//
//	cfg := client.DefaultConfig()
//	cfg.Port = resp.Port()
//	reply, err := client.AttemptCommand(cfg, "127.0.0.1", []byte("stats\r\n"))
package responder

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// maxBindAttempts bounds the search for a port free on both TCP and UDP.
const maxBindAttempts = 10

// readChunk is the largest command the responder accepts.
const readChunk = 4096

// Handler computes the reply to one command. The command is passed exactly
// as received, line terminator included.
type Handler func(command []byte) []byte

// Echo replies with the command itself.
func Echo(command []byte) []byte {
	return append([]byte(nil), command...)
}

// Responder is a running device emulator.
type Responder struct {
	address      string
	handler      Handler
	logger       *slog.Logger
	tcpEnabled   bool
	udpEnabled   bool
	chunkSize    int
	chunkGap     time.Duration
	initialDelay time.Duration
	endMarker    bool
	dropFirst    int
	holdOpen     bool

	tcp  *net.TCPListener
	udp  *net.UDPConn
	port int

	tcpCount atomic.Int64
	udpCount atomic.Int64

	mu    sync.Mutex
	seen  int
	last  []byte
	conns map[net.Conn]struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New binds the listeners and starts serving.
//
// Process:
//  1. Apply options
//  2. Bind TCP on an ephemeral port, then UDP on the same port, retrying
//     with a fresh port if UDP finds it taken
//  3. Start the accept and datagram loops
//
// Returns:
//   - *Responder: serving until Close
//   - error: option error or bind failure
func New(opts ...Option) (*Responder, error) {
	r := &Responder{
		address:    "127.0.0.1",
		handler:    Echo,
		logger:     slog.Default(),
		tcpEnabled: true,
		udpEnabled: true,
		conns:      make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := r.bind(); err != nil {
		return nil, err
	}

	if r.tcp != nil {
		r.wg.Add(1)
		go r.serveTCP()
	}
	if r.udp != nil {
		r.wg.Add(1)
		go r.serveUDP()
	}

	r.logger.Debug("responder listening",
		"component", "responder",
		"address", r.address,
		"port", r.port,
		"tcp", r.tcp != nil,
		"udp", r.udp != nil,
	)
	return r, nil
}

// bind opens the enabled listeners on a shared port.
func (r *Responder) bind() error {
	ip, err := netip.ParseAddr(r.address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", r.address, err)
	}

	if !r.tcpEnabled {
		udp, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, 0)))
		if err != nil {
			return fmt.Errorf("failed to listen udp: %w", err)
		}
		r.udp = udp
		r.port = udp.LocalAddr().(*net.UDPAddr).Port
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxBindAttempts; attempt++ {
		tcp, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(netip.AddrPortFrom(ip, 0)))
		if err != nil {
			return fmt.Errorf("failed to listen tcp: %w", err)
		}
		port := tcp.Addr().(*net.TCPAddr).Port

		if !r.udpEnabled {
			r.tcp, r.port = tcp, port
			return nil
		}

		udp, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port))))
		if err != nil {
			_ = tcp.Close()
			lastErr = err
			continue
		}
		r.tcp, r.udp, r.port = tcp, udp, port
		return nil
	}

	return fmt.Errorf("no port free for both tcp and udp after %d attempts: %w", maxBindAttempts, lastErr)
}

// Port returns the port shared by the TCP and UDP listeners.
func (r *Responder) Port() int {
	return r.port
}

// Addr returns "address:port" for dialing the responder.
func (r *Responder) Addr() string {
	return net.JoinHostPort(r.address, strconv.Itoa(r.port))
}

// TCPCommands returns the number of commands received over TCP, dropped
// ones included.
func (r *Responder) TCPCommands() int {
	return int(r.tcpCount.Load())
}

// UDPCommands returns the number of commands received over UDP, dropped
// ones included.
func (r *Responder) UDPCommands() int {
	return int(r.udpCount.Load())
}

// LastCommand returns a copy of the most recent command, or nil if none
// arrived yet.
func (r *Responder) LastCommand() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	return append([]byte(nil), r.last...)
}

// Close stops serving, closes every open connection, and waits for all
// goroutines to exit. It is safe to call more than once.
func (r *Responder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.tcp != nil {
			err = r.tcp.Close()
		}
		if r.udp != nil {
			if uerr := r.udp.Close(); err == nil {
				err = uerr
			}
		}
		r.mu.Lock()
		for conn := range r.conns {
			_ = conn.Close()
		}
		r.mu.Unlock()
		r.wg.Wait()
	})
	return err
}

// accept records command and reports whether it should be answered.
func (r *Responder) accept(command []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	r.last = append([]byte(nil), command...)
	return r.seen > r.dropFirst
}

// chunks splits reply per the chunking option.
func (r *Responder) chunks(reply []byte) [][]byte {
	if r.chunkSize <= 0 || len(reply) <= r.chunkSize {
		return [][]byte{reply}
	}
	var out [][]byte
	for len(reply) > 0 {
		n := min(r.chunkSize, len(reply))
		out = append(out, reply[:n])
		reply = reply[n:]
	}
	return out
}

// pause sleeps for d unless the responder closes first.
func (r *Responder) pause(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	}
}

func (r *Responder) closing() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
