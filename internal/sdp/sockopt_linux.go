//go:build linux
// +build linux

package sdp

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket reaches past net.ListenUDP's defaults into
// golang.org/x/sys/unix to widen the receive buffer and allow the
// debug/control ports to be rebound quickly after a restart, the same
// idiom the teacher uses for inotify fds applied here to UDP sockets.
func tuneSocket(conn *net.UDPConn, rcvBuf int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = raw.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf)
		if setErr != nil {
			return
		}
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
