package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// registrationGate lists the commands honored before a client completes
// registration, per spec §3's invariant and §4.E's dispatcher contract.
var registrationGate = map[string]bool{
	"PASS": true,
	"NICK": true,
	"USER": true,
	"CAP":  true,
	"QUIT": true,
}

func (c *Client) ident() string {
	if c.nickname != "" {
		return c.nickname
	}
	return "*"
}

// dispatch parses one line and routes it to a handler, enforcing the
// registration gate, grounded on Server.cpp's handleClientMessage ->
// processCommand flow collapsed into a single Go switch.
func (s *Server) dispatch(c *Client, line string) {
	msg := ParseMessage(line)
	if msg.Command == "" || msg.Invalid {
		return
	}

	if !c.registered && !registrationGate[msg.Command] {
		c.enqueue(errNotRegistered(c.ident()))
		return
	}

	switch msg.Command {
	case "PASS":
		s.handlePass(c, msg)
	case "NICK":
		s.handleNick(c, msg)
	case "USER":
		s.handleUser(c, msg)
	case "CAP":
		s.handleCap(c, msg)
	case "PING":
		s.handlePing(c, msg)
	case "QUIT":
		s.handleQuit(c, msg)
	case "JOIN":
		s.handleJoin(c, msg)
	case "PART":
		s.handlePart(c, msg)
	case "PRIVMSG":
		s.handlePrivmsg(c, msg)
	case "TOPIC":
		s.handleTopic(c, msg)
	case "MODE":
		s.handleMode(c, msg)
	case "KICK":
		s.handleKick(c, msg)
	case "INVITE":
		s.handleInvite(c, msg)
	default:
		c.enqueue(errUnknownCommand(c.ident(), msg.Command))
	}
}

// handlePass sets passwordOk iff the supplied password matches the
// server's. Only meaningful before registration.
func (s *Server) handlePass(c *Client, msg *Message) {
	if c.registered {
		c.enqueue(errAlreadyRegistered(c.ident()))
		return
	}
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "PASS"))
		return
	}
	c.passwordOk = params[0] == s.password
}

// handleNick implements NICK, grounded on nickCommand.cpp: validate, check
// the uniqueness index, echo RPL_NICK to self on a rename, rekey every
// channel where the old nick was a member or invitee, then commit.
func (s *Server) handleNick(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 || params[0] == "" {
		c.enqueue(errNoNicknameGiven(c.ident()))
		return
	}
	newNick := params[0]

	if strings.ContainsAny(newNick, "#@:&") {
		c.enqueue(errErroneusNickname(c.ident(), newNick))
		return
	}
	if _, taken := s.nicknames[newNick]; taken {
		c.enqueue(errNicknameInUse(c.ident(), newNick))
		return
	}

	hadNick := c.nickname != ""
	oldNick := c.nickname
	if hadNick {
		c.enqueue(rplNick(oldNick, c.username, newNick))
	}

	s.setNickname(c, newNick)

	if !c.registered && c.canRegister() {
		s.completeRegistration(c)
	}
}

// handleUser implements USER <user> <mode> <unused> :<realname>.
func (s *Server) handleUser(c *Client, msg *Message) {
	if c.registered {
		c.enqueue(errAlreadyRegistered(c.ident()))
		return
	}
	params := msg.AllParams()
	if len(params) < 4 {
		c.enqueue(errNeedMoreParams(c.ident(), "USER"))
		return
	}

	c.username = params[0]
	c.realname = params[3]

	if c.canRegister() {
		s.completeRegistration(c)
	}
}

// handleCap tolerates IRCv3 capability negotiation as a pre-registration
// no-op: this server advertises no capabilities and never blocks
// registration on CAP END, matching SPEC_FULL.md §4.E's CAP contract.
func (s *Server) handleCap(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) == 0 {
		return
	}
	switch strings.ToUpper(params[0]) {
	case "LS", "LIST":
		c.enqueue(fmt.Sprintf(":localhost CAP %s LS :", c.ident()))
	case "REQ":
		c.enqueue(fmt.Sprintf(":localhost CAP %s NAK :%s", c.ident(), strings.Join(params[1:], " ")))
	case "END":
		if !c.registered && c.canRegister() {
			s.completeRegistration(c)
		}
	}
}

// completeRegistration sends the welcome numerics once PASS/NICK/USER have
// all succeeded, grounded on Client::completeRegistration's numeric
// sequence but trimmed to the MOTD-free scope of this server.
func (s *Server) completeRegistration(c *Client) {
	if !c.passwordOk {
		c.enqueue(errPasswdMismatch(c.ident()))
		return
	}

	c.registered = true
	c.enqueue(rplWelcome(c.nickname, c.username))
	c.enqueue(rplYourHost(c.nickname, s.config.ServerName, "ircd-1.0"))
	c.enqueue(rplCreated(c.nickname, s.stats.StartTime.Format(time.RFC1123)))
	c.enqueue(rplMyInfo(c.nickname, s.config.ServerName, "ircd-1.0", "", "itklo", "kl"))
}

func (s *Server) handlePing(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "PING"))
		return
	}
	c.enqueue(rplPong(s.config.ServerName, params[0]))
}

func (s *Server) handleQuit(c *Client, msg *Message) {
	params := msg.AllParams()
	reason := "Client quit"
	if len(params) > 0 {
		reason = params[0]
	}
	if c.registered {
		quit := rplQuit(c.nickname, c.username, reason)
		s.removeClientFromAllChannels(c, quit)
		delete(s.nicknames, c.nickname)
	}
	c.quitting = true
}

// handleJoin implements JOIN <chan{,chan}> [key{,key}], grounded on
// join.cpp but with the observed "stop at first existing channel" bug fixed
// per SPEC_FULL.md's resolved open question: every channel in the list is
// processed.
func (s *Server) handleJoin(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "JOIN"))
		return
	}

	channelNames := strings.Split(params[0], ",")
	var keys []string
	if len(params) > 1 {
		keys = strings.Split(params[1], ",")
	}

	for i, name := range channelNames {
		if !isValidChannelName(name) {
			continue
		}
		var key string
		if i < len(keys) {
			key = keys[i]
		}
		s.joinOne(c, name, key)
	}
}

func (s *Server) joinOne(c *Client, name, key string) {
	ch, existed := s.channels[name]

	if existed {
		invited := ch.isInvited(c.nickname)

		if ch.isMember(c.nickname) {
			c.enqueue(errUserOnChannel(c.ident(), c.nickname, name))
			return
		}
		if ch.atLimit() && !invited {
			c.enqueue(errChannelIsFull(c.ident(), name))
			return
		}
		if ch.hasMode('i') && !invited {
			c.enqueue(errInviteOnlyChan(c.ident(), name))
			return
		}
		if ch.hasMode('k') && ch.key != key {
			c.enqueue(errBadChannelKey(c.ident(), name))
			return
		}

		ch.addClient(c)
	} else {
		ch, _ = s.getOrCreateChannel(name, c)
	}

	c.channels[name] = true
	ch.broadcast(rplJoin(c.nickname, c.username, name))
	s.sendJoinGreeting(c, ch, !existed)
}

// sendJoinGreeting reproduces Server::greetJoinedUser: a conditional
// mode reply for the channel's creator, a topic reply if one is set, and
// the NAMES listing terminated by RPL_ENDOFNAMES.
func (s *Server) sendJoinGreeting(c *Client, ch *Channel, firstMember bool) {
	if firstMember {
		c.enqueue(rplChannelModeIs(c.ident(), ch.name, ch.modeString()))
	}
	if ch.topic != "" {
		c.enqueue(rplTopic(c.ident(), ch.name, ch.topic))
	}
	c.enqueue(rplNamReply(c.ident(), "=", ch.name, ch.namesList()))
	c.enqueue(rplEndOfNames(c.ident(), ch.name))
}

// handlePart implements PART <chan{,chan}> [:<reason>].
func (s *Server) handlePart(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "PART"))
		return
	}

	reason := ""
	if len(params) > 1 {
		reason = params[1]
	}

	for _, name := range strings.Split(params[0], ",") {
		ch, ok := s.channels[name]
		if !ok {
			c.enqueue(errNoSuchChannel(c.ident(), name))
			continue
		}
		if !ch.isMember(c.nickname) {
			c.enqueue(errNotOnChannel(c.ident(), name))
			continue
		}

		ch.broadcast(rplPart(c.nickname, c.username, name, reason))
		ch.removeClient(c)
		delete(c.channels, name)
		s.destroyChannelIfEmpty(name)
	}
}

// handlePrivmsg implements PRIVMSG <target> :<text>, grounded on
// privateMessage.cpp.
func (s *Server) handlePrivmsg(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNoRecipient(c.ident()))
		return
	}
	if len(params) < 2 || params[1] == "" {
		c.enqueue(errNoTextToSend(c.ident()))
		return
	}

	target, text := params[0], params[1]
	frame := rplPrivMsg(c.nickname, c.username, target, text)

	if isValidChannelName(target) {
		ch, ok := s.channels[target]
		if !ok || !ch.isMember(c.nickname) {
			c.enqueue(errCannotSendToChan(c.ident(), target))
			return
		}
		ch.broadcastExcept(c, frame)
		return
	}

	dest := s.findClientByNick(target)
	if dest == nil {
		c.enqueue(errNoSuchNick(c.ident(), target))
		return
	}
	dest.enqueue(frame)
}

// handleTopic implements TOPIC <chan> [:<text>], grounded on
// topicCommand.cpp.
func (s *Server) handleTopic(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "TOPIC"))
		return
	}
	name := params[0]
	if !isValidChannelName(name) {
		return
	}

	ch, ok := s.channels[name]
	if !ok {
		c.enqueue(errNoSuchChannel(c.ident(), name))
		return
	}
	if !ch.isMember(c.nickname) {
		c.enqueue(errNotOnChannel(c.ident(), name))
		return
	}

	if !msg.HasTrailing() && len(params) < 2 {
		if ch.topic == "" {
			c.enqueue(rplNoTopic(c.ident(), name))
		} else {
			c.enqueue(rplTopic(c.ident(), name, ch.topic))
		}
		return
	}

	if ch.hasMode('t') && !ch.isOperator(c.nickname) {
		c.enqueue(errChanOpPrivsNeeded(c.ident(), name))
		return
	}

	newTopic := params[1]
	ch.setTopic(newTopic)
	ch.broadcast(rplChangeTopic(c.nickname, c.username, name, newTopic))
}

// handleMode implements MODE <target> [modestring [args...]], grounded on
// modeCommand.cpp including its two preserved quirks: a non-channel,
// non-existent-user target returns ERR_NOSUCHCHANNEL, and a modestring
// against a known user is otherwise silently accepted (no user modes).
func (s *Server) handleMode(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 1 {
		c.enqueue(errNeedMoreParams(c.ident(), "MODE"))
		return
	}
	target := params[0]

	if !isValidChannelName(target) {
		if s.findClientByNick(target) == nil {
			c.enqueue(errNoSuchChannel(c.ident(), target))
		}
		return
	}

	ch, ok := s.channels[target]
	if !ok {
		c.enqueue(errNoSuchChannel(c.ident(), target))
		return
	}

	if len(params) < 2 {
		c.enqueue(rplChannelModeIs(c.ident(), target, ch.modeString()))
		return
	}

	if !ch.isOperator(c.nickname) {
		c.enqueue(errChanOpPrivsNeeded(c.ident(), target))
		return
	}

	s.applyChannelModes(c, ch, params[1], params[2:])
}

// applyChannelModes parses modestring left-to-right per the table in
// SPEC_FULL.md §4.E and broadcasts one aggregated MODE line if anything
// actually changed.
func (s *Server) applyChannelModes(c *Client, ch *Channel, modestring string, args []string) {
	argIdx := 0
	adding := true
	var appliedSigns, appliedFlags []byte
	var appliedArgs []string

	nextArg := func() (string, bool) {
		if argIdx >= len(args) {
			return "", false
		}
		a := args[argIdx]
		argIdx++
		return a, true
	}

	record := func(sign byte, flag byte, arg string) {
		appliedSigns = append(appliedSigns, sign)
		appliedFlags = append(appliedFlags, flag)
		if arg != "" {
			appliedArgs = append(appliedArgs, arg)
		}
	}

	for _, ch2 := range modestring {
		switch ch2 {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i', 't':
			if ch.setMode(byte(ch2), adding) {
				record(signByte(adding), byte(ch2), "")
			}
		case 'k':
			if adding {
				arg, have := nextArg()
				if !have {
					c.enqueue(errNeedMoreParams(c.ident(), "MODE"))
					continue
				}
				if !isAlphanumeric(arg) {
					c.enqueue(errInvalidModeParam(c.ident(), ch.name, "k", arg))
					continue
				}
				if ch.setKey(arg) {
					record('+', 'k', arg)
				}
			} else {
				if ch.hasMode('k') {
					ch.removeKey()
					record('-', 'k', "")
				}
			}
		case 'l':
			if adding {
				arg, have := nextArg()
				if !have {
					c.enqueue(errNeedMoreParams(c.ident(), "MODE"))
					continue
				}
				n, err := strconv.Atoi(arg)
				if err != nil || n <= 0 {
					c.enqueue(errInvalidModeParam(c.ident(), ch.name, "l", arg))
					continue
				}
				if ch.setUserLimit(n) {
					record('+', 'l', arg)
				}
			} else {
				if ch.hasMode('l') {
					ch.removeUserLimit()
					record('-', 'l', "")
				}
			}
		case 'o':
			nick, have := nextArg()
			if !have || !ch.isMember(nick) {
				c.enqueue(errUserNotInChannel(c.ident(), nick, ch.name))
				continue
			}
			if adding {
				if !ch.isOperator(nick) {
					ch.addOperator(nick)
					record('+', 'o', nick)
				}
			} else {
				if ch.isOperator(nick) {
					ch.removeOperator(nick)
					record('-', 'o', nick)
				}
			}
		case 'b':
			// accepted and ignored, per spec's no-op ban-list contract.
		default:
			c.enqueue(errUnknownMode(c.ident(), string(ch2)))
		}
	}

	if len(appliedFlags) == 0 {
		return
	}

	ch.broadcast(modeChannelChangeMode(c.nickname, c.username, ch.name, aggregateModeString(appliedSigns, appliedFlags, appliedArgs)))
}

func signByte(adding bool) byte {
	if adding {
		return '+'
	}
	return '-'
}

// aggregateModeString renders "+ok-t nick key" from parallel sign/flag
// slices, grouping consecutive same-sign runs the way IRC servers do.
func aggregateModeString(signs, flags []byte, args []string) string {
	var sb strings.Builder
	var lastSign byte
	for i, flag := range flags {
		if i == 0 || signs[i] != lastSign {
			sb.WriteByte(signs[i])
			lastSign = signs[i]
		}
		sb.WriteByte(flag)
	}
	for _, a := range args {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	return sb.String()
}

// handleKick implements KICK <chan> <nick{,nick}> [:<comment>], grounded on
// kick.cpp including the self-kick literal line and the "recheck emptiness
// after each target" ordering.
func (s *Server) handleKick(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 2 {
		c.enqueue(errNeedMoreParams(c.ident(), "KICK"))
		return
	}
	name := params[0]

	ch, ok := s.channels[name]
	if !ok {
		c.enqueue(errNoSuchChannel(c.ident(), name))
		return
	}
	if !ch.isMember(c.nickname) {
		c.enqueue(errNotOnChannel(c.ident(), name))
		return
	}
	if !ch.isOperator(c.nickname) {
		c.enqueue(errChanOpPrivsNeeded(c.ident(), name))
		return
	}

	reason := ""
	if len(params) > 2 {
		reason = params[2]
	}

	for _, targetNick := range strings.Split(params[1], ",") {
		if _, stillExists := s.channels[name]; !stillExists {
			break
		}

		if targetNick == c.nickname {
			c.enqueue(selfKickLine(c.nickname, name))
			continue
		}

		target := s.findClientByNick(targetNick)
		if target == nil || !ch.isMember(targetNick) {
			c.enqueue(errUserNotInChannel(c.ident(), targetNick, name))
			continue
		}

		ch.broadcast(rplKick(c.nickname, c.username, name, targetNick, reason))
		ch.removeClient(target)
		delete(target.channels, name)
		s.destroyChannelIfEmpty(name)
	}
}

// handleInvite implements INVITE <nick> <chan>.
func (s *Server) handleInvite(c *Client, msg *Message) {
	params := msg.AllParams()
	if len(params) < 2 {
		c.enqueue(errNeedMoreParams(c.ident(), "INVITE"))
		return
	}
	targetNick, name := params[0], params[1]

	ch, ok := s.channels[name]
	if !ok {
		c.enqueue(errNoSuchChannel(c.ident(), name))
		return
	}
	if !ch.isMember(c.nickname) {
		c.enqueue(errNotOnChannel(c.ident(), name))
		return
	}
	if ch.hasMode('i') && !ch.isOperator(c.nickname) {
		c.enqueue(errChanOpPrivsNeeded(c.ident(), name))
		return
	}

	target := s.findClientByNick(targetNick)
	if target == nil {
		c.enqueue(errNoSuchNick(c.ident(), targetNick))
		return
	}
	if ch.isMember(targetNick) {
		c.enqueue(errUserOnChannel(c.ident(), targetNick, name))
		return
	}

	ch.invite(target)
	c.enqueue(rplInviting(c.nickname, c.username, c.ident(), targetNick, name))
	target.enqueue(rplInvite(c.nickname, c.username, targetNick, name))
}
