//go:build !linux
// +build !linux

package sdp

import "net"

// tuneSocket is a no-op off Linux: SO_RCVBUF/SO_REUSEADDR tuning via
// golang.org/x/sys/unix is Linux-specific in this loader.
func tuneSocket(conn *net.UDPConn, rcvBuf int) error {
	return nil
}
