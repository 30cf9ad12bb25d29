// Package netutil provides the socket-level tweaks the relay applies to
// its listening and dialing sockets.
package netutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenConfig is a net.ListenConfig preconfigured with SO_REUSEADDR, so a
// restarted relay can rebind its listen address immediately instead of
// waiting out TIME_WAIT.
var ListenConfig = net.ListenConfig{Control: controlReuseAddr}

// Dialer is a net.Dialer preconfigured the same way, for the client's
// connection to the relay server and the server's connection to each
// session's destination.
var Dialer = net.Dialer{Control: controlReuseAddr}

func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Listen opens a TCP listener on addr with SO_REUSEADDR set.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	return ListenConfig.Listen(ctx, "tcp", addr)
}
