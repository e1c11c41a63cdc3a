package irc

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// ServerStats is an in-memory counter set. StartTime feeds RPL_CREATED; the
// multiplexer increments MessagesReceived/MessagesSent, but nothing reports
// them, and PeakConnections is never updated. None of it is exposed through
// a STATS command, which is out of scope.
type ServerStats struct {
	StartTime        time.Time
	MessagesReceived int64
	MessagesSent     int64
	PeakConnections  int
}

// Config is the server-identity overlay optionally loaded from a file by
// irc/config, layered under the mandatory CLI <port> <password>.
type Config struct {
	ServerName  string
	NetworkName string
	Debug       bool
}

// Server is the process-wide registry: fd->Client, nick->Client, and
// name->Channel, grounded on original_source/SRC/Server.cpp's Server class
// but reduced to the explicit, lock-free value the single-threaded
// multiplexer owns end-to-end.
type Server struct {
	config   Config
	password string
	host     string
	port     string

	clientsByFd map[int]*Client
	nicknames   map[string]*Client // authoritative uniqueness index
	channels    map[string]*Channel

	listenFd int
	shutdown chan struct{}
	ready    chan string // receives the bound "host:port" once Run starts listening
	stats    *ServerStats

	mu sync.Mutex // serializes concurrent Stop() calls so shutdown is closed once
}

// NewServer constructs a registry for the given bind host/port and
// connection password. It does not open any sockets; call Run to start the
// multiplexer.
func NewServer(host, port, password string, cfg Config) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "ircserv"
	}
	if cfg.NetworkName == "" {
		cfg.NetworkName = "ircserv-net"
	}

	return &Server{
		config:      cfg,
		password:    password,
		host:        host,
		port:        port,
		clientsByFd: make(map[int]*Client),
		nicknames:   make(map[string]*Client),
		channels:    make(map[string]*Channel),
		shutdown:    make(chan struct{}),
		ready:       make(chan string, 1),
		stats:       &ServerStats{StartTime: time.Now()},
	}
}

// Ready yields the actual bound "host:port" once Run has successfully
// opened its listening socket; useful for tests that bind to port 0.
func (s *Server) Ready() <-chan string {
	return s.ready
}

// Stop requests a graceful shutdown; Run's poll loop observes this at the
// next tick boundary.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		// already stopped
	default:
		close(s.shutdown)
	}
}

func (s *Server) findClientByNick(nick string) *Client {
	return s.nicknames[nick]
}

// setNickname applies a NICK change across the registry's uniqueness index
// and every channel the client is a member of or invited to, grounded on
// nickCommand.cpp: the old entry is dropped first, every matching channel is
// rekeyed while the client's stored nickname is still the old value, and
// only then is the new nickname committed onto the client and index.
func (s *Server) setNickname(c *Client, newNick string) {
	old := c.nickname
	if old != "" {
		delete(s.nicknames, old)
		for _, ch := range s.channels {
			if ch.isMember(old) || ch.isInvited(old) {
				ch.updateNickname(old, newNick)
			}
		}
	}
	s.nicknames[newNick] = c
	c.nickname = newNick
}

// getOrCreateChannel returns the named channel, creating it (with creator
// as sole operator) if it does not already exist. Reports whether it was
// freshly created.
func (s *Server) getOrCreateChannel(name string, creator *Client) (*Channel, bool) {
	if ch, ok := s.channels[name]; ok {
		return ch, false
	}
	ch := newChannel(name, creator)
	s.channels[name] = ch
	return ch, true
}

// destroyChannelIfEmpty removes name from the registry once its membership
// drops to zero.
func (s *Server) destroyChannelIfEmpty(name string) {
	if ch, ok := s.channels[name]; ok && len(ch.users) == 0 {
		delete(s.channels, name)
	}
}

// removeClientFromAllChannels detaches c from every channel it belongs to,
// broadcasting frame (if non-empty) to former channel-mates first, and
// destroys channels that become empty as a result.
func (s *Server) removeClientFromAllChannels(c *Client, frame string) {
	for name, ch := range s.channels {
		if !ch.isMember(c.nickname) {
			continue
		}
		if frame != "" {
			ch.broadcastExcept(c, frame)
		}
		ch.removeClient(c)
		s.destroyChannelIfEmpty(name)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	log.Printf("[ircd] "+format, args...)
}

func (s *Server) addrString() string {
	return fmt.Sprintf("%s:%s", s.host, s.port)
}
