package connio

import "net"

// Listener accepts TCP connections and wraps each as a Conn, used by the MD
// for its participant-facing listener and by any role-server that prefers
// to accept rather than dial (§4.1 "Connection layer").
type Listener struct {
	ln   net.Listener
	opts []Option
}

// Listen binds address and returns a Listener. Pass opts to apply the same
// Conn construction options (timeouts, logger) to every accepted connection.
func Listen(address string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, opts: opts}, nil
}

// Addr reports the bound address, useful when address requested port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(raw, l.opts...), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Dial connects to a remote MD/participant endpoint, used by SS/DB/CA role
// processes that connect into the bus rather than accept connections.
func Dial(address string, opts ...Option) (*Conn, error) {
	raw, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return newConn(raw, opts...), nil
}
