package server

import "github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"

// Client is one registered chat participant. The name is immutable for the
// record's lifetime and unique across the registry. The per-client command
// counters are only ever mutated through the registry's bump methods, under
// the registry lock, so the statistics snapshot never races with them.
type Client struct {
	Name string
	Conn *SafeConn

	// guarded by the owning registry's mutex
	say  uint64
	kick uint64
	list uint64
}

// NewClient creates an unregistered client record.
func NewClient(name string, conn *SafeConn) *Client {
	return &Client{Name: name, Conn: conn}
}

// Send writes one message to this client's stream. Cross-handler use (the
// kick notification) is safe because SafeConn serializes writes.
func (c *Client) Send(m protocol.Message) error {
	return c.Conn.Send(m)
}

// ClientStats is a point-in-time copy of one client's counters.
type ClientStats struct {
	Name string
	Say  uint64
	Kick uint64
	List uint64
}
