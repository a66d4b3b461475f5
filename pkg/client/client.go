// Package client implements the terminal chat client: authentication, name
// negotiation with automatic numeric suffixes, and the two I/O loops that
// bridge the user's terminal to the wire protocol.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"
)

var (
	// ErrKicked reports that the server delivered a KICK: notification.
	ErrKicked = errors.New("kicked")
	// ErrAuthRejected reports that the server dropped the connection after
	// the secret was sent, before accepting it.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrComms reports any other stream failure.
	ErrComms = errors.New("communications error")
)

// Client is one client-side connection to the chat server.
type Client struct {
	conn net.Conn
	dec  *protocol.Decoder
	out  io.Writer
	name string
}

// Dial connects to the server on the given host and port.
func Dial(host string, port int) (*Client, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComms, err)
	}
	return New(conn, nil), nil
}

// New wraps an established connection. Rendered chat output goes to out
// (stdout when nil).
func New(conn net.Conn, out io.Writer) *Client {
	if out == nil {
		out = io.Discard
	}
	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
		out:  out,
	}
}

// SetOutput directs rendered chat output to w.
func (c *Client) SetOutput(w io.Writer) {
	c.out = w
}

// Name returns the display name accepted by the server, once negotiated.
func (c *Client) Name() string {
	return c.name
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Authenticate waits for the server's AUTH: prompt, answers with the
// secret, and waits for OK:. End-of-stream before the secret is sent is a
// communications error; end-of-stream after it is an authentication
// rejection, since the server silently drops mismatched clients.
func (c *Client) Authenticate(secret string) error {
	if err := c.waitFor(protocol.TagAuth, ErrComms); err != nil {
		return err
	}
	if err := c.send(protocol.NewMessage(protocol.TagAuth, secret)); err != nil {
		return err
	}
	return c.waitFor(protocol.TagOK, ErrAuthRejected)
}

// Negotiate proposes base as the display name, retrying with base0, base1,
// ... while the server answers NAME_TAKEN:. Returns the accepted name.
func (c *Client) Negotiate(base string) (string, error) {
	for iteration := -1; ; iteration++ {
		if err := c.waitFor(protocol.TagWho, ErrComms); err != nil {
			return "", err
		}

		name := base
		if iteration >= 0 {
			name = base + strconv.Itoa(iteration)
		}
		if err := c.send(protocol.NewMessage(protocol.TagName, name)); err != nil {
			return "", err
		}

		for {
			msg, err := c.dec.Decode()
			if err != nil {
				return "", ErrComms
			}
			if msg.Tag == protocol.TagOK {
				c.name = name
				return name, nil
			}
			if msg.Tag == protocol.TagNameTaken {
				break
			}
		}
	}
}

// Run bridges input lines to the server and server messages to the output
// until either side finishes. A nil return means a normal exit (user EOF or
// explicit leave); ErrKicked and ErrComms report the distinct failure exits.
func (c *Client) Run(input io.Reader) error {
	done := make(chan error, 2)

	go func() { done <- c.sendLoop(input) }()
	go func() { done <- c.receiveLoop() }()

	err := <-done
	c.conn.Close()
	return err
}

// sendLoop forwards terminal input. Lines prefixed with '*' are control
// commands sent verbatim; '*LEAVE:' also ends the session. Anything else is
// wrapped as SAY:.
func (c *Client) sendLoop(input io.Reader) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "*") {
			// Control commands go out verbatim, stripped of the prefix.
			command := line[1:]
			if err := c.sendRaw(command); err != nil {
				return err
			}
			if command == "LEAVE:" {
				return nil
			}
			continue
		}
		if err := c.send(protocol.NewMessage(protocol.TagSay, line)); err != nil {
			return err
		}
	}
	// EOF on the terminal is a normal exit.
	return nil
}

// receiveLoop renders server messages. An exact KICK: notification is the
// kicked exit; end-of-stream is a communications error.
func (c *Client) receiveLoop() error {
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			return ErrComms
		}

		if msg.Tag == protocol.TagKick && msg.Payload == "" {
			return ErrKicked
		}

		switch msg.Tag {
		case protocol.TagEnter:
			if msg.Payload != "" {
				fmt.Fprintf(c.out, "(%s has entered the chat)\n", msg.Payload)
			}
		case protocol.TagLeave:
			if msg.Payload != "" {
				fmt.Fprintf(c.out, "(%s has left the chat)\n", msg.Payload)
			}
		case protocol.TagList:
			if msg.Payload != "" {
				fmt.Fprintf(c.out, "(current chatters: %s)\n", msg.Payload)
			}
		case protocol.TagMsg:
			name, text, _ := strings.Cut(msg.Payload, ":")
			if name != "" {
				fmt.Fprintf(c.out, "%s: %s\n", name, text)
			}
		}
	}
}

func (c *Client) send(m protocol.Message) error {
	return c.sendRaw(m.Format())
}

func (c *Client) sendRaw(line string) error {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("%w: %v", ErrComms, err)
	}
	return nil
}

// waitFor discards lines until one matches tag exactly (tag with empty
// payload); streamErr is returned if the stream closes first.
func (c *Client) waitFor(tag string, streamErr error) error {
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			return streamErr
		}
		if msg.Tag == tag && msg.Payload == "" {
			return nil
		}
	}
}
