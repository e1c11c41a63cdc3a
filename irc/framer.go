package irc

import "strings"

// readBufferSize is the typical 4096-byte read buffer size. The framer
// enforces no per-line length cap: lines are framed from whatever arrives
// on the wire rather than truncated.
const readBufferSize = 4096

// lineFramer accumulates inbound bytes for one connection and yields
// complete lines as they arrive, grounded on Client.cpp's
// appendToBuffer/getBuffer/clearBuffer pattern and Server.cpp's
// handleClientMessage loop over buffer.find('\n').
type lineFramer struct {
	pending string
}

func (f *lineFramer) append(data []byte) {
	f.pending += string(data)
}

// takeLines extracts every complete '\n'-terminated line currently
// buffered, stripping a trailing '\r' from each, and leaves any partial
// tail in place for the next read.
func (f *lineFramer) takeLines() []string {
	if f.pending == "" {
		return nil
	}

	var lines []string
	for {
		idx := strings.IndexByte(f.pending, '\n')
		if idx == -1 {
			break
		}
		line := f.pending[:idx]
		f.pending = f.pending[idx+1:]
		line = strings.TrimSuffix(line, "\r")
		lines = append(lines, line)
	}
	return lines
}
