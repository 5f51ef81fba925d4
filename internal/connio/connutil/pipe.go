// Package connutil provides in-process loopback helpers for connio tests,
// adapted from the teacher's internal/websockettest (which dials a real
// websocket listener with pong responses disabled): here we use net.Pipe
// to avoid binding a real socket for director/connection tests.
package connutil

import "net"

// Pipe returns two net.Conn endpoints connected in-memory, suitable for
// wrapping with connio's Conn constructors in tests without a TCP listener.
func Pipe() (a, b net.Conn) {
	return net.Pipe()
}
