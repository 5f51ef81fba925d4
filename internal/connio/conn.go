// Package connio implements the connection layer: a TCP listener/dialer
// pair and a per-connection reader/writer goroutine split, matching the
// teacher's websocket client loop (main.go's reader/writer goroutines with
// read-deadline-driven keepalive) translated to raw length-prefixed TCP
// framing (§4.1, §5, §A.3.3).
package connio

import (
	"errors"
	"net"
	"sync"
	"time"

	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

const (
	// DefaultReadTimeout bounds how long a connection may go without a
	// frame before the watchdog considers it dead.
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds a single outbound frame write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultKeepAlive is the interval at which a zero-length heartbeat
	// frame is written to every connection, whatever other outbound
	// traffic it carries, resetting the peer's own read deadline.
	DefaultKeepAlive = 10 * time.Second
)

// ErrClosed is returned by Send once a connection has been closed.
var ErrClosed = errors.New("connio: connection closed")

// Conn wraps a net.Conn with the reader/writer goroutine split described in
// §5: a dedicated reader goroutine decodes framed datagrams and hands them
// to a caller-supplied handler, while a dedicated writer goroutine owns the
// socket's write side and interleaves a periodic keepalive heartbeat,
// mirroring the teacher's ping-ticker/write-loop pattern.
type Conn struct {
	raw  net.Conn
	send chan []byte

	readTimeout  time.Duration
	writeTimeout time.Duration
	keepAlive    time.Duration

	logger *logging.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Option customises Conn construction.
type Option func(*Conn)

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithKeepAlive overrides DefaultKeepAlive.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.keepAlive = d
		}
	}
}

// WithLogger attaches a logger for connection diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConn wraps an already-established net.Conn (including a net.Pipe
// endpoint used by tests) as a Conn without requiring a Listener or Dial
// call.
func NewConn(raw net.Conn, opts ...Option) *Conn {
	return newConn(raw, opts...)
}

func newConn(raw net.Conn, opts ...Option) *Conn {
	c := &Conn{
		raw:          raw,
		send:         make(chan []byte, 64),
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		keepAlive:    DefaultKeepAlive,
		logger:       logging.L(),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Send queues payload for the writer goroutine. It never blocks on socket
// I/O; it only blocks if the send buffer is full, exerting natural
// backpressure on a slow peer.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// Close tears down the connection, unblocking both goroutines. Safe to call
// more than once and from either goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return c.raw.Close()
}

// Done reports a channel closed once the connection has been torn down, for
// callers (e.g. the Message Director) that need to detect disconnect and run
// participant teardown.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Serve runs the reader and writer loops until the connection closes,
// invoking onFrame for every decoded inbound payload. It blocks until both
// loops exit, so callers invoke it from its own goroutine per connection.
func (c *Conn) Serve(onFrame func(payload []byte)) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(onFrame)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	wg.Wait()
}

func (c *Conn) readLoop(onFrame func(payload []byte)) {
	defer c.Close()
	for {
		if err := c.raw.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return
		}
		payload, err := wire.ReadFrame(c.raw)
		if err != nil {
			if c.logger != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Warn("connio: read deadline exceeded, disconnecting", logging.String("remote", c.raw.RemoteAddr().String()))
				} else {
					c.logger.Debug("connio: read loop ended", logging.Error(err))
				}
			}
			return
		}
		if len(payload) == 0 {
			// Zero-length frames are keepalive heartbeats; the deadline
			// reset above is the only effect they have.
			continue
		}
		onFrame(payload)
	}
}

func (c *Conn) writeLoop() {
	defer c.Close()
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeFrame(payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeFrame(nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeFrame(payload []byte) error {
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := wire.WriteFrame(c.raw, payload); err != nil {
		if c.logger != nil {
			c.logger.Warn("connio: write error, disconnecting", logging.Error(err))
		}
		return err
	}
	return nil
}
