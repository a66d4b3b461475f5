package server

import (
	"strings"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"
)

// Broadcast sends one message to every registered client in ascending name
// order. Delivery is best-effort: a failed send does not abort the fan-out,
// and the dead client's own handler discovers the broken stream on its next
// read. The whole fan-out runs inside the registry's critical section so it
// observes a consistent membership snapshot.
func (r *Registry) Broadcast(m protocol.Message) {
	recipients := 0
	r.ForEach(func(c *Client) {
		if err := c.Send(m); err != nil {
			debugLog.Printf("broadcast to %s failed: %v", c.Name, err)
		}
		recipients++
	})

	if r.metrics != nil {
		r.metrics.RecordBroadcast(recipients)
	}
}

// ListPayload returns the comma-joined sorted roster used as the payload of
// a LIST response. An empty registry yields an empty payload.
func (r *Registry) ListPayload() string {
	return strings.Join(r.Names(), ",")
}
