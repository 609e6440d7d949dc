//go:build windows

package transport

import (
	"net"

	"golang.org/x/sys/windows"
)

// setBroadcast enables SO_BROADCAST on fd.
func setBroadcast(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}

// pendingError is a no-op on Windows, where ConnectEx reports the
// handshake result to the dial itself.
func pendingError(_ *net.TCPConn) error {
	return nil
}
