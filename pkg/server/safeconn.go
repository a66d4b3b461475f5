package server

import (
	"net"
	"sync"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"
)

// SafeConn wraps a connection with write synchronization so that the owning
// handler and a kicking handler can both send on it without interleaving
// partial lines. Writes go straight to the socket; there is no buffering
// between messages.
type SafeConn struct {
	conn    net.Conn
	enc     *protocol.Encoder
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewSafeConn wraps conn.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{conn: conn, enc: protocol.NewEncoder(conn)}
}

// Send writes one protocol line to the connection.
func (c *SafeConn) Send(m protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return net.ErrClosed
	}
	return c.enc.Encode(m)
}

// Read implements io.Reader so a protocol.Decoder can be attached directly.
func (c *SafeConn) Read(b []byte) (int, error) {
	return c.conn.Read(b)
}

// Close closes the underlying connection. Safe to call more than once; the
// registry and the handler may race on cleanup.
func (c *SafeConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *SafeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *SafeConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
