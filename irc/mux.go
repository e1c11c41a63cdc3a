package irc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// pollTimeoutMillis matches spec §4.F: a 1 second readiness-wait timeout so
// a pending shutdown is observed promptly even with no active traffic.
const pollTimeoutMillis = 1000

const readChunkSize = 4096

// Run opens the listening socket and drives the single-threaded poll loop
// until Stop is called or poll fails (accept errors are only logged), grounded on
// original_source/SRC/Server.cpp's initServer/runServer.
func (s *Server) Run() error {
	listenFd, err := s.initListener()
	if err != nil {
		return err
	}
	s.listenFd = listenFd
	defer unix.Close(listenFd)

	boundAddr := s.addrString()
	if sa, err := unix.Getsockname(listenFd); err == nil {
		boundAddr = remoteHostname(sa)
	}
	select {
	case s.ready <- boundAddr:
	default:
	}

	s.logf("listening on %s", boundAddr)

	pollFds := []unix.PollFd{{Fd: int32(listenFd), Events: unix.POLLIN}}

	for {
		select {
		case <-s.shutdown:
			s.closeAll()
			return nil
		default:
		}

		n, err := unix.Poll(pollFds, pollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		if pollFds[0].Revents&unix.POLLIN != 0 {
			s.acceptOne()
		}

		closedFds := make(map[int]bool)
		for i := 1; i < len(pollFds); i++ {
			pfd := &pollFds[i]
			fd := int(pfd.Fd)
			c, ok := s.clientsByFd[fd]
			if !ok {
				continue
			}

			if pfd.Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
				closedFds[fd] = true
				continue
			}
			if pfd.Revents&unix.POLLIN != 0 {
				if !s.readFromClient(c) {
					closedFds[fd] = true
					continue
				}
			}
			if pfd.Revents&unix.POLLOUT != 0 && len(c.outbox) > 0 {
				s.drainOutbox(c)
			}
		}

		for fd := range closedFds {
			s.closeClient(fd)
		}

		pollFds = s.rebuildPollSet(listenFd)
	}
}

func (s *Server) rebuildPollSet(listenFd int) []unix.PollFd {
	pollFds := make([]unix.PollFd, 0, len(s.clientsByFd)+1)
	pollFds = append(pollFds, unix.PollFd{Fd: int32(listenFd), Events: unix.POLLIN})
	for fd, c := range s.clientsByFd {
		events := int16(unix.POLLIN)
		if len(c.outbox) > 0 {
			events |= unix.POLLOUT
		}
		pollFds = append(pollFds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	return pollFds
}

// initListener creates, binds and listens on a non-blocking TCP socket with
// SO_REUSEADDR, matching Server.cpp's initServer.
func (s *Server) initListener() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", s.addrString())
	if err != nil {
		return -1, fmt.Errorf("resolve %s: %w", s.addrString(), err)
	}

	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}

	sa, err := sockaddrFor(domain, addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	return fd, nil
}

func sockaddrFor(domain int, addr *net.TCPAddr) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa, nil
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil && addr.IP.To4() != nil {
		copy(sa.Addr[:], addr.IP.To4())
	}
	return sa, nil
}

// acceptOne accepts a single pending connection, matching
// Server.cpp's handleNewConnection.
func (s *Server) acceptOne() {
	fd, sa, err := unix.Accept(s.listenFd)
	if err != nil {
		if err != unix.EAGAIN {
			s.logf("accept error: %v", err)
		}
		return
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		s.logf("set nonblocking on client fd %d: %v", fd, err)
	}

	hostname := remoteHostname(sa)
	c := newClient(fd, hostname)
	s.clientsByFd[fd] = c
	s.logf("accepted connection from %s (fd %d)", hostname, fd)
}

func remoteHostname(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "unknown"
	}
}

// readFromClient performs one non-blocking read, appends to the client's
// inbox, and dispatches every complete line. Returns false if the
// connection should be closed (EOF or error), matching ft_recv's contract.
func (s *Server) readFromClient(c *Client) bool {
	buf := make([]byte, readChunkSize)
	n, err := unix.Read(c.fd, buf)
	if n > 0 {
		c.appendInbound(buf[:n])
		for _, line := range c.takeLines() {
			if line == "" {
				continue
			}
			s.stats.MessagesReceived++
			s.dispatch(c, line)
			if c.quitting {
				return false
			}
		}
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return true
		}
		return false
	}
	return n != 0
}

// drainOutbox best-effort writes queued frames, matching Server.cpp's
// sendToClient: on the first write error the queue is left intact for a
// retry on the next writable-readiness tick. A partial write advances
// c.writeOffset rather than mutating the queued string, so a retry never
// re-appends the "\r\n" terminator onto an already-terminated remainder.
func (s *Server) drainOutbox(c *Client) {
	for len(c.outbox) > 0 {
		frame := c.outbox[0] + "\r\n"
		n, err := unix.Write(c.fd, []byte(frame[c.writeOffset:]))
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.logf("write error to fd %d: %v", c.fd, err)
			return
		}
		c.writeOffset += n
		if c.writeOffset < len(frame) {
			return
		}
		s.stats.MessagesSent++
		c.outbox = c.outbox[1:]
		c.writeOffset = 0
	}
}

// closeClient reaps a connection: broadcasts a synthetic QUIT to former
// channel-mates (the resolved open question from Design Notes §9), removes
// it from the registry, and closes the socket.
func (s *Server) closeClient(fd int) {
	c, ok := s.clientsByFd[fd]
	if !ok {
		return
	}

	if c.registered {
		quit := rplQuit(c.nickname, c.username, "Connection reset")
		s.removeClientFromAllChannels(c, quit)
	}
	if s.nicknames[c.nickname] == c {
		delete(s.nicknames, c.nickname)
	}

	delete(s.clientsByFd, fd)
	unix.Close(fd)
	s.logf("closed connection fd %d (%s)", fd, c.hostname)
}

// closeAll tears down every open connection and channel on shutdown.
func (s *Server) closeAll() {
	for fd, c := range s.clientsByFd {
		c.enqueue("ERROR :Server shutting down")
		s.drainOutbox(c)
		unix.Close(fd)
	}
	s.clientsByFd = make(map[int]*Client)
	s.nicknames = make(map[string]*Client)
	s.channels = make(map[string]*Channel)
	s.logf("shutdown complete")
}
