package protocol

import "strings"

// Message tags. Every line on the wire is TAG:payload terminated by a
// newline; the payload may itself contain colons.
const (
	TagAuth      = "AUTH"
	TagOK        = "OK"
	TagWho       = "WHO"
	TagName      = "NAME"
	TagNameTaken = "NAME_TAKEN"
	TagSay       = "SAY"
	TagMsg       = "MSG"
	TagEnter     = "ENTER"
	TagLeave     = "LEAVE"
	TagList      = "LIST"
	TagKick      = "KICK"
)

// Message is one protocol line, split into its tag and everything after the
// first colon.
type Message struct {
	Tag     string
	Payload string
}

// NewMessage constructs a message with the given tag and payload.
func NewMessage(tag, payload string) Message {
	return Message{Tag: tag, Payload: payload}
}

// Format renders the message in wire form without the trailing newline,
// e.g. "MSG:alice:hi" or "OK:". The payload is treated as opaque data.
func (m Message) Format() string {
	return m.Tag + ":" + m.Payload
}

// Parse splits a line on the first colon into tag and payload. A line
// without a colon is not a protocol message; the second return is false and
// the line must be ignored, never matched against a tag.
func Parse(line string) (Message, bool) {
	tag, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Message{}, false
	}
	return Message{Tag: tag, Payload: payload}, true
}

// Sanitize replaces every byte below 0x20 with '?'. Applied when composing
// broadcast payloads (MSG, ENTER, LEAVE), not at decode time.
func Sanitize(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] < 0x20 {
					b[j] = '?'
				}
			}
			return string(b)
		}
	}
	return s
}
