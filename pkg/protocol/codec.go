package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrStreamClosed reports that the peer closed the stream (or the stream
// failed) while a line was expected. Callers treat it as a disconnect, never
// as a malformed message.
var ErrStreamClosed = errors.New("stream closed")

// Encoder writes protocol lines to a stream. Each message is written and
// flushed in one call; there is no output buffering across messages.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one message in wire form followed by a newline.
func (e *Encoder) Encode(m Message) error {
	if _, err := io.WriteString(e.w, m.Format()+"\n"); err != nil {
		return err
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Decoder reads newline-terminated protocol lines from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next well-formed message. Lines without a colon are
// not protocol messages and are discarded, so a bare command word never
// reaches a caller's tag match. End-of-stream or a read error yields
// ErrStreamClosed; a final unterminated line before EOF is still delivered,
// matching read-until-newline-or-EOF semantics.
func (d *Decoder) Decode() (Message, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line != "" {
				if m, ok := Parse(line); ok {
					return m, nil
				}
			}
			return Message{}, ErrStreamClosed
		}
		if m, ok := Parse(strings.TrimSuffix(line, "\n")); ok {
			return m, nil
		}
	}
}
