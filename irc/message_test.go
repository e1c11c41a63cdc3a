package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageBasic(t *testing.T) {
	msg := ParseMessage("JOIN #test")
	require.False(t, msg.Invalid)
	assert.Equal(t, "JOIN", msg.Command)
	assert.Equal(t, []string{"#test"}, msg.AllParams())
}

func TestParseMessageTrailing(t *testing.T) {
	msg := ParseMessage("PRIVMSG #test :hello there friend")
	require.False(t, msg.Invalid)
	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.True(t, msg.HasTrailing())
	assert.Equal(t, []string{"#test", "hello there friend"}, msg.AllParams())
}

func TestParseMessageTrimsTrailingWhitespace(t *testing.T) {
	msg := ParseMessage("TOPIC #x :  hello  ")
	require.False(t, msg.Invalid)
	assert.Equal(t, "hello", msg.Trailing)
}

func TestParseMessageEmptyTrailing(t *testing.T) {
	msg := ParseMessage("TOPIC #test :")
	require.False(t, msg.Invalid)
	assert.True(t, msg.HasTrailing())
	assert.Equal(t, "", msg.Trailing)
}

func TestParseMessageEmptyLine(t *testing.T) {
	msg := ParseMessage("")
	assert.Equal(t, "", msg.Command)
	assert.False(t, msg.Invalid)
}

func TestParseMessageTags(t *testing.T) {
	msg := ParseMessage("@time=2024-01-01T00:00:00Z :NICK alice")
	require.False(t, msg.Invalid)
	assert.Equal(t, "@time=2024-01-01T00:00:00Z", msg.Tags)
	assert.Equal(t, "NICK", msg.Command)
	assert.Equal(t, []string{"alice"}, msg.AllParams())
}

func TestParseMessageServerPrefixTolerated(t *testing.T) {
	msg := ParseMessage(":somenick PING hello")
	require.False(t, msg.Invalid)
	assert.Equal(t, "PING", msg.Command)
	assert.Equal(t, []string{"hello"}, msg.AllParams())
}

func TestParseMessageInvalidCharInParam(t *testing.T) {
	msg := ParseMessage("MODE #test +k bad:key")
	assert.True(t, msg.Invalid)
	assert.NotEmpty(t, msg.ErrorMsg)
}

func TestParseMessageCommandIsUppercased(t *testing.T) {
	msg := ParseMessage("join #test")
	assert.Equal(t, "JOIN", msg.Command)
}

func TestMessageStringRoundTrip(t *testing.T) {
	line := "PRIVMSG #test :hello there"
	msg := ParseMessage(line)
	assert.Equal(t, line, msg.String())
}

func TestLineFramerSplitsOnNewline(t *testing.T) {
	var f lineFramer
	f.append([]byte("NICK alice\r\nUSER a 0 * :A\r\n"))
	lines := f.takeLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "NICK alice", lines[0])
	assert.Equal(t, "USER a 0 * :A", lines[1])
}

func TestLineFramerHoldsPartialLine(t *testing.T) {
	var f lineFramer
	f.append([]byte("NICK al"))
	assert.Empty(t, f.takeLines())
	f.append([]byte("ice\r\n"))
	lines := f.takeLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "NICK alice", lines[0])
}
