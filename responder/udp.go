package responder

import (
	"net/netip"
)

// endMarker is the single-byte datagram that ends a UDP reply.
var endMarker = []byte{0}

func (r *Responder) serveUDP() {
	defer r.wg.Done()

	buf := make([]byte, readChunk)
	for {
		n, src, err := r.udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			if r.closing() {
				return
			}
			r.logger.Debug("receive failed",
				"component", "responder",
				"error", err,
			)
			continue
		}
		r.udpCount.Add(1)
		r.handleDatagram(buf[:n], src)
	}
}

// handleDatagram answers one command. Datagrams are handled in arrival
// order, one at a time, like a single-threaded device would.
func (r *Responder) handleDatagram(command []byte, src netip.AddrPort) {
	if !r.accept(command) {
		r.logger.Debug("dropping command",
			"component", "responder",
			"transport", "udp",
			"from", src,
		)
		return
	}

	if !r.pause(r.initialDelay) {
		return
	}

	reply := r.handler(command)
	for i, chunk := range r.chunks(reply) {
		if i > 0 && !r.pause(r.chunkGap) {
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := r.udp.WriteToUDPAddrPort(chunk, src); err != nil {
			r.logger.Debug("send failed",
				"component", "responder",
				"transport", "udp",
				"to", src,
				"error", err,
			)
			return
		}
	}

	if r.endMarker {
		_, _ = r.udp.WriteToUDPAddrPort(endMarker, src)
	}
}
