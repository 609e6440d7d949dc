package responder

import (
	"net"
)

func (r *Responder) serveTCP() {
	defer r.wg.Done()

	for {
		conn, err := r.tcp.Accept()
		if err != nil {
			if r.closing() {
				return
			}
			r.logger.Debug("accept failed",
				"component", "responder",
				"error", err,
			)
			continue
		}

		r.mu.Lock()
		if r.closing() {
			r.mu.Unlock()
			_ = conn.Close()
			return
		}
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go r.handleConn(conn)
	}
}

// handleConn answers the single command a client sends per connection.
func (r *Responder) handleConn(conn net.Conn) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		_ = conn.Close()
	}()

	buf := make([]byte, readChunk)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	command := buf[:n]
	r.tcpCount.Add(1)

	if !r.accept(command) {
		r.logger.Debug("dropping command",
			"component", "responder",
			"transport", "tcp",
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
		if _, err := conn.Write(chunk); err != nil {
			r.logger.Debug("write failed",
				"component", "responder",
				"transport", "tcp",
				"error", err,
			)
			return
		}
	}

	if r.holdOpen {
		// Wait for the client to hang up.
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}
}
