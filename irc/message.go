package irc

import "strings"

// Message is the parsed shape of one inbound line, grounded on
// original_source/SRC/ParseMessage.cpp's ParseMessage constructor.
type Message struct {
	Tags     string // raw IRCv3 tag block, including the leading '@', empty if absent
	Command  string
	Params   []string
	Trailing string
	hasTrailing bool

	Invalid  bool
	ErrorMsg string
}

// ParseMessage turns one logical line (no CRLF) into a Message.
//
// Grammar: a line starting with "@" opens an IRCv3 tag block that runs up
// to the first ':'-led token, whose remainder is the command; a tagged line
// with no such token has no command. Without tags, an optional ":prefix"
// token is skipped and the next token is the command. The remaining
// whitespace-separated tokens are positional
// params until a token begins with ':', whose remainder to end-of-line
// (taken from the original string, not the re-split tokens) becomes the
// trailing parameter. A non-trailing param containing '\n', '\r', '\t' or
// ':' is rejected, matching ParseMessage.cpp's isValid check.
func ParseMessage(line string) *Message {
	msg := &Message{Params: make([]string, 0, 4)}
	if line == "" {
		return msg
	}

	rest := line
	if rest[0] == '@' {
		colon := strings.Index(rest, " :")
		if colon == -1 {
			msg.Tags = rest
			return msg
		}
		msg.Tags = strings.TrimRight(rest[:colon], " ")
		rest = rest[colon+2:]
	}

	// A server-style ":prefix command ..." line is tolerated (unused by
	// clients but harmless to accept) by skipping the prefix token.
	if len(rest) > 0 && rest[0] == ':' {
		sp := strings.IndexByte(rest, ' ')
		if sp == -1 {
			return msg
		}
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	if rest == "" {
		return msg
	}

	sp := strings.IndexByte(rest, ' ')
	if sp == -1 {
		msg.Command = strings.ToUpper(rest)
		return msg
	}
	msg.Command = strings.ToUpper(rest[:sp])
	rest = strings.TrimLeft(rest[sp+1:], " ")

	for rest != "" {
		if rest[0] == ':' {
			msg.Trailing = strings.TrimSpace(rest[1:])
			msg.hasTrailing = true
			break
		}

		var tok string
		if i := strings.IndexByte(rest, ' '); i == -1 {
			tok, rest = rest, ""
		} else {
			tok, rest = rest[:i], strings.TrimLeft(rest[i+1:], " ")
		}

		if strings.ContainsAny(tok, "\n\r\t:") {
			msg.Invalid = true
			msg.ErrorMsg = "Invalid character in parameter: " + tok
			break
		}

		msg.Params = append(msg.Params, tok)
	}

	return msg
}

// HasTrailing reports whether the line carried a ':'-prefixed trailing
// parameter at all, distinguishing "TOPIC #room" from "TOPIC #room :".
func (m *Message) HasTrailing() bool {
	return m.hasTrailing
}

// AllParams returns the positional params with the trailing parameter (if
// any) appended as the final element, the shape most handlers want.
func (m *Message) AllParams() []string {
	if !m.hasTrailing {
		return m.Params
	}
	out := make([]string, len(m.Params)+1)
	copy(out, m.Params)
	out[len(m.Params)] = m.Trailing
	return out
}

// String serializes the message back to wire form, satisfying
// parse(format(msg)) == msg for well-formed messages.
func (m *Message) String() string {
	var b strings.Builder
	if m.Tags != "" {
		b.WriteString(m.Tags)
		b.WriteString(" :")
	}
	b.WriteString(m.Command)
	for _, p := range m.Params {
		b.WriteString(" ")
		b.WriteString(p)
	}
	if m.hasTrailing {
		b.WriteString(" :")
		b.WriteString(m.Trailing)
	}
	return b.String()
}
