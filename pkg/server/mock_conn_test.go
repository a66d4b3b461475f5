package server

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// mockConn captures everything written to it and reads nothing. Used to
// stand in for a registered client's connection when only the server-to-
// client direction matters.
type mockConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	done   chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{done: make(chan struct{})}
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(b)
}

func (c *mockConn) Read(b []byte) (int, error) {
	<-c.done
	return 0, io.EOF
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// lines returns the complete lines written so far.
func (c *mockConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := strings.TrimSuffix(c.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (c *mockConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *mockConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }
