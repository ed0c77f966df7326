// Package portarbiter finds a TCP port the engine can bind its RPC
// interface to. The bind-and-release probe is the standard net.Listen
// idiom; cuemby-warren's pkg/health package polls a socket path the same
// way this package probes a port, by attempting the operation; on
// failure this package moves straight on to the next port, with no
// backoff.
package portarbiter

import (
	"fmt"
	"net"

	"burncloud-aria2/internal/aerrors"
)

const maxPort = 65535

// IsBindable reports whether a TCP listener can be opened on
// 127.0.0.1:port. It releases the listener immediately; the caller
// races any other process attempting to bind the same port between the
// probe and its own bind, a known limitation noted in the Open
// Questions of the governing design.
func IsBindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindAvailable returns the least port p >= start for which IsBindable
// holds, searching up to 65535.
func FindAvailable(start int) (int, error) {
	for port := start; port <= maxPort; port++ {
		if IsBindable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: starting from %d", aerrors.ErrNoAvailablePort, start)
}
