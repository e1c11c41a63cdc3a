package irc

// Client is per-connection state, grounded on original_source/SRC/Client.cpp
// but reshaped into the data-record contract of spec component C: a single
// goroutine (the multiplexer) owns every Client, so no mutex is needed.
type Client struct {
	fd int

	nickname string
	username string
	realname string
	hostname string

	passwordOk bool
	registered bool
	quitting   bool

	channels map[string]bool // channel name -> member

	framer lineFramer
	outbox []string

	writeOffset int // bytes of outbox[0]+"\r\n" already written on a partial drain
}

func newClient(fd int, hostname string) *Client {
	return &Client{
		fd:       fd,
		hostname: hostname,
		channels: make(map[string]bool),
	}
}

// canRegister reports whether NICK/USER have both been supplied; the PASS
// check itself happens in completeRegistration so a wrong password produces
// an explicit ERR_PASSWDMISMATCH instead of silently stalling.
func (c *Client) canRegister() bool {
	return c.nickname != "" && c.username != ""
}

// appendInbound feeds freshly-read bytes into the line framer.
func (c *Client) appendInbound(data []byte) {
	c.framer.append(data)
}

// takeLines drains every complete line currently buffered.
func (c *Client) takeLines() []string {
	return c.framer.takeLines()
}

// enqueue appends a frame (without CRLF) to the outbound queue.
func (c *Client) enqueue(frame string) {
	c.outbox = append(c.outbox, frame)
}

// id returns the "nick!user@host"-less identity pair used by numeric
// reply/relay formatters; host is intentionally omitted (no DNS resolution
// per the non-goals) in favor of the fixed "localhost" origin used
// throughout NumericReplies.hpp.
func (c *Client) id() (nick, user string) {
	return c.nickname, c.username
}
