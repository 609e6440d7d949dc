//go:build !windows

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// setBroadcast enables SO_BROADCAST on fd.
func setBroadcast(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
}

// pendingError reads and clears SO_ERROR on conn's socket.
func pendingError(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var soErr int
	var optErr error
	if err := raw.Control(func(fd uintptr) {
		soErr, optErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	}); err != nil {
		return err
	}
	if optErr != nil {
		return optErr
	}
	if soErr != 0 {
		return syscall.Errno(soErr)
	}
	return nil
}
