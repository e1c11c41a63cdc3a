package irc

import "sort"

// Channel is the authoritative membership/mode record for one channel,
// grounded on original_source/SRC/Channel.cpp's Channel class.
type Channel struct {
	name       string
	topic      string
	users      map[string]*Client
	operators  map[string]*Client
	inviteList map[string]*Client

	modes     map[byte]bool
	key       string
	userLimit int
}

// newChannel creates a channel with its creator as sole member and
// operator. Channel.cpp's constructor enables mode 't' by default even
// though nothing else about the channel requests it; that quirk is
// preserved here.
func newChannel(name string, creator *Client) *Channel {
	ch := &Channel{
		name:       name,
		users:      make(map[string]*Client),
		operators:  make(map[string]*Client),
		inviteList: make(map[string]*Client),
		modes: map[byte]bool{
			'i': false,
			't': false,
			'k': false,
			'o': false,
			'l': false,
		},
	}
	ch.setMode('t', true)
	ch.addClient(creator)
	return ch
}

func (ch *Channel) setMode(flag byte, on bool) bool {
	if ch.modes[flag] == on {
		return false
	}
	ch.modes[flag] = on
	return true
}

func (ch *Channel) hasMode(flag byte) bool {
	return ch.modes[flag]
}

// addClient inserts c into the membership, clears any pending invite, and
// promotes c to operator if the channel currently has none.
func (ch *Channel) addClient(c *Client) {
	ch.users[c.nickname] = c
	delete(ch.inviteList, c.nickname)
	if len(ch.operators) == 0 {
		ch.addOperator(c.nickname)
	}
}

// removeClient drops c from membership and, if that emptied the operator
// set while members remain, promotes the lexicographically-first remaining
// member so the "non-empty channel always has an operator" invariant holds.
// c must be deleted from both maps before the refill scan, or the departing
// member (if it sorts first) would still be visible in users and get
// re-promoted as a ghost operator.
func (ch *Channel) removeClient(c *Client) {
	delete(ch.operators, c.nickname)
	delete(ch.users, c.nickname)
	if len(ch.operators) == 0 && len(ch.users) > 0 {
		ch.addOperator(ch.firstRemainingNick())
	}
	ch.setMode('o', len(ch.operators) > 0)
}

func (ch *Channel) isMember(nick string) bool {
	_, ok := ch.users[nick]
	return ok
}

func (ch *Channel) isInvited(nick string) bool {
	_, ok := ch.inviteList[nick]
	return ok
}

func (ch *Channel) isOperator(nick string) bool {
	_, ok := ch.operators[nick]
	return ok
}

// addOperator is a no-op if nick is not a member, per the public contract.
func (ch *Channel) addOperator(nick string) {
	c, ok := ch.users[nick]
	if !ok {
		return
	}
	ch.operators[nick] = c
	ch.setMode('o', true)
}

// removeOperator removes nick from operators and, if that empties the
// operator set while members remain, promotes the lexicographically-first
// remaining member. Deterministic refill beats the source's
// map-iteration-order "arbitrary" pick while staying within the contract.
func (ch *Channel) removeOperator(nick string) {
	delete(ch.operators, nick)
	if len(ch.operators) == 0 && len(ch.users) > 0 {
		ch.addOperator(ch.firstRemainingNick())
	}
	ch.setMode('o', len(ch.operators) > 0)
}

func (ch *Channel) firstRemainingNick() string {
	nicks := make([]string, 0, len(ch.users))
	for n := range ch.users {
		nicks = append(nicks, n)
	}
	sort.Strings(nicks)
	return nicks[0]
}

func (ch *Channel) invite(c *Client) {
	ch.inviteList[c.nickname] = c
}

// setTopic always forces mode t on, matching Channel::setTopic.
func (ch *Channel) setTopic(t string) {
	ch.topic = t
	ch.setMode('t', true)
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func (ch *Channel) setKey(k string) bool {
	if !isAlphanumeric(k) {
		return false
	}
	ch.key = k
	ch.setMode('k', true)
	return true
}

func (ch *Channel) removeKey() {
	ch.key = ""
	ch.setMode('k', false)
}

func (ch *Channel) setUserLimit(n int) bool {
	if n <= 0 {
		return false
	}
	ch.userLimit = n
	ch.setMode('l', true)
	return true
}

// removeUserLimit sets userLimit to -1, matching Channel::removeUserLimit's
// sentinel. Go's signed int comparisons (len(users) >= userLimit) never
// underflow for this sentinel since len() is always >= 0 > -1, so the
// admission check below is unconditionally false once this runs, which is
// exactly the desired "limit disabled" effect without a separate branch.
func (ch *Channel) removeUserLimit() {
	ch.userLimit = -1
	ch.setMode('l', false)
}

// atLimit reports whether admission should be rejected for a non-invited
// joiner per the l-mode contract.
func (ch *Channel) atLimit() bool {
	return ch.hasMode('l') && len(ch.users) >= ch.userLimit
}

func (ch *Channel) broadcast(frame string) {
	for _, c := range ch.users {
		c.enqueue(frame)
	}
}

func (ch *Channel) broadcastExcept(except *Client, frame string) {
	for nick, c := range ch.users {
		if nick == except.nickname {
			continue
		}
		c.enqueue(frame)
	}
}

// updateNickname rekeys old->new in users, operators and inviteList,
// preserving the *Client pointer wherever old was present. Grounded on
// Channel::updateNickname.
func (ch *Channel) updateNickname(old, newNick string) {
	if c, ok := ch.users[old]; ok {
		delete(ch.users, old)
		ch.users[newNick] = c
	}
	if c, ok := ch.operators[old]; ok {
		delete(ch.operators, old)
		ch.operators[newNick] = c
	}
	if c, ok := ch.inviteList[old]; ok {
		delete(ch.inviteList, old)
		ch.inviteList[newNick] = c
	}
}

// namesList builds the space-separated, '@'-prefixed-for-operators member
// list used by RPL_NAMREPLY, grounded on Channel::getUsersList.
func (ch *Channel) namesList() string {
	nicks := make([]string, 0, len(ch.users))
	for n := range ch.users {
		nicks = append(nicks, n)
	}
	sort.Strings(nicks)

	out := make([]string, len(nicks))
	for i, n := range nicks {
		if ch.isOperator(n) {
			out[i] = "@" + n
		} else {
			out[i] = n
		}
	}

	s := ""
	for i, n := range out {
		if i > 0 {
			s += " "
		}
		s += n
	}
	return s
}

// modeString renders the currently-set flags as "+itk", in a fixed letter
// order, for RPL_CHANNELMODEIS.
func (ch *Channel) modeString() string {
	order := []byte{'i', 't', 'k', 'l'}
	s := "+"
	for _, f := range order {
		if ch.modes[f] {
			s += string(f)
		}
	}
	return s
}

func isValidChannelName(name string) bool {
	return len(name) >= 2 && (name[0] == '#' || name[0] == '&')
}
