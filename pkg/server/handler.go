package server

import (
	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"
)

// Handler drives one client connection through authentication, name
// negotiation and chatting. Its lifetime is exactly the state machine's
// lifetime: when Run returns, the connection is closed and any registry
// entry has been removed.
type Handler struct {
	registry *Registry
	secret   Secret
	conn     *SafeConn
	dec      *protocol.Decoder
}

// NewHandler creates a handler for one accepted connection.
func NewHandler(registry *Registry, secret Secret, conn *SafeConn) *Handler {
	return &Handler{
		registry: registry,
		secret:   secret,
		conn:     conn,
		dec:      protocol.NewDecoder(conn),
	}
}

// Run executes the full protocol exchange. It always leaves the connection
// closed, either through the registry removal path (which closes it) or
// directly when the client never registered.
func (h *Handler) Run() {
	if !h.authenticate() {
		h.conn.Close()
		return
	}

	client, ok := h.negotiateName()
	if !ok {
		h.conn.Close()
		return
	}

	h.chat(client)
}

// authenticate prompts with AUTH: and verifies the client's secret. A
// mismatch silently drops the connection; the client observes end-of-stream
// and reports the authentication failure itself.
func (h *Handler) authenticate() bool {
	if err := h.conn.Send(protocol.NewMessage(protocol.TagAuth, "")); err != nil {
		return false
	}

	msg, ok := h.waitFor(protocol.TagAuth)
	if !ok {
		return false
	}
	h.registry.BumpAuth()

	if !h.secret.Verify(msg.Payload) {
		debugLog.Printf("%s: authentication rejected", h.conn.RemoteAddr())
		return false
	}

	return h.conn.Send(protocol.NewMessage(protocol.TagOK, "")) == nil
}

// negotiateName prompts with WHO: until the client proposes a name the
// registry accepts. Insert is the authoritative uniqueness check: two
// handlers racing on the same name both reach Insert, and exactly one wins.
func (h *Handler) negotiateName() (*Client, bool) {
	for {
		if err := h.conn.Send(protocol.NewMessage(protocol.TagWho, "")); err != nil {
			return nil, false
		}

		msg, ok := h.waitFor(protocol.TagName)
		if !ok {
			return nil, false
		}
		h.registry.BumpName()

		name := msg.Payload
		if name == "" {
			if err := h.conn.Send(protocol.NewMessage(protocol.TagNameTaken, "")); err != nil {
				return nil, false
			}
			continue
		}

		client := NewClient(name, h.conn)
		if err := h.registry.Insert(client); err != nil {
			if err := h.conn.Send(protocol.NewMessage(protocol.TagNameTaken, "")); err != nil {
				return nil, false
			}
			continue
		}

		if err := h.conn.Send(protocol.NewMessage(protocol.TagOK, "")); err != nil {
			h.registry.Remove(name)
			return nil, false
		}

		chatLog.Printf("(%s has entered the chat)", protocol.Sanitize(name))
		h.registry.Broadcast(protocol.NewMessage(protocol.TagEnter, protocol.Sanitize(name)))
		return client, true
	}
}

// chat loops over client commands until the client leaves, is kicked, or
// the stream breaks. Malformed and unrecognized lines are ignored.
func (h *Handler) chat(client *Client) {
	for {
		msg, err := h.dec.Decode()
		if err != nil {
			h.depart(client)
			return
		}

		switch {
		case msg.Tag == protocol.TagLeave && msg.Payload == "":
			h.registry.BumpLeave()
			h.depart(client)
			return

		case msg.Tag == protocol.TagList && msg.Payload == "":
			h.registry.BumpList(client)
			if err := client.Send(protocol.NewMessage(protocol.TagList, h.registry.ListPayload())); err != nil {
				debugLog.Printf("%s: list response failed: %v", client.Name, err)
			}

		case msg.Tag == protocol.TagSay:
			h.registry.BumpSay(client)
			name := protocol.Sanitize(client.Name)
			text := protocol.Sanitize(msg.Payload)
			chatLog.Printf("%s: %s", name, text)
			h.registry.Broadcast(protocol.NewMessage(protocol.TagMsg, name+":"+text))

		case msg.Tag == protocol.TagKick:
			// Counted even when the payload names nobody, the empty name
			// included; the statistics report counts commands, not effects.
			h.registry.BumpKick(client)
			if target, ok := h.registry.Lookup(msg.Payload); ok {
				// The target is not removed here: its own handler sees the
				// notification's effect (the client closes the stream) and
				// cleans up through the disconnect path. A failed send is
				// absorbed for the same reason.
				if err := target.Send(protocol.NewMessage(protocol.TagKick, "")); err != nil {
					debugLog.Printf("kick notification to %s failed: %v", target.Name, err)
				}
			}
		}
	}
}

// depart removes the client from the registry and announces the departure.
// Both the explicit leave and the disconnect path funnel through here; only
// the former counts toward the LEAVE total, bumped by the caller.
func (h *Handler) depart(client *Client) {
	h.registry.Remove(client.Name)
	name := protocol.Sanitize(client.Name)
	chatLog.Printf("(%s has left the chat)", name)
	h.registry.Broadcast(protocol.NewMessage(protocol.TagLeave, name))
}

// waitFor reads lines until one carries the wanted tag, discarding the
// rest. Returns false when the stream closes first.
func (h *Handler) waitFor(tag string) (protocol.Message, bool) {
	for {
		msg, err := h.dec.Decode()
		if err != nil {
			return protocol.Message{}, false
		}
		if msg.Tag == tag {
			return msg, true
		}
	}
}
