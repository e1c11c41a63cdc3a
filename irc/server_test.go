package irc_test

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ahmedalshafy/ircd/irc"
)

// ircTestClient wraps a raw TCP connection the way presbrey-pkg's irc_test.go
// IRCClient does, trimmed to what these scenarios exercise.
type ircTestClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTestClient(t *testing.T, addr string) *ircTestClient {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &ircTestClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *ircTestClient) send(line string) {
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *ircTestClient) expect(t *testing.T, contains string, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for time.Now().Before(deadline) {
		line, err := c.r.ReadString('\n')
		if err != nil {
			continue
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.Contains(line, contains) {
			return line
		}
	}
	t.Fatalf("timed out waiting for line containing %q", contains)
	return ""
}

func (c *ircTestClient) register(t *testing.T, nick string) {
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick + " Test")
	c.expect(t, " 001 ", time.Second)
}

func startTestServer(t *testing.T) (*irc.Server, string) {
	srv := irc.NewServer("127.0.0.1", "0", "letmein", irc.Config{ServerName: "test.local", NetworkName: "TestNet"})
	go srv.Run()

	select {
	case addr := <-srv.Ready():
		t.Cleanup(srv.Stop)
		return srv, addr
	case <-time.After(time.Second):
		t.Fatal("server never became ready")
		return nil, ""
	}
}

func TestRegistrationHappyPath(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTestClient(t, addr)
	defer c.conn.Close()

	c.send("PASS letmein")
	c.register(t, "alice")
}

func TestRegistrationRejectsWrongPassword(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTestClient(t, addr)
	defer c.conn.Close()

	c.send("PASS wrongpass")
	c.send("NICK alice")
	c.send("USER alice 0 * :Alice")
	c.expect(t, " 464 ", time.Second)
}

func TestNicknameCollision(t *testing.T) {
	_, addr := startTestServer(t)

	c1 := dialTestClient(t, addr)
	defer c1.conn.Close()
	c1.send("PASS letmein")
	c1.register(t, "alice")

	c2 := dialTestClient(t, addr)
	defer c2.conn.Close()
	c2.send("PASS letmein")
	c2.send("NICK alice")
	c2.expect(t, " 433 ", time.Second)
}

func TestJoinAndChannelMessage(t *testing.T) {
	_, addr := startTestServer(t)

	c1 := dialTestClient(t, addr)
	defer c1.conn.Close()
	c1.send("PASS letmein")
	c1.register(t, "alice")
	c1.send("JOIN #test")
	c1.expect(t, "JOIN :#test", time.Second)

	c2 := dialTestClient(t, addr)
	defer c2.conn.Close()
	c2.send("PASS letmein")
	c2.register(t, "bob")
	c2.send("JOIN #test")
	c2.expect(t, "JOIN :#test", time.Second)

	c1.send("PRIVMSG #test :hello bob")
	c2.expect(t, "PRIVMSG #test :hello bob", time.Second)
}

func TestChannelKeyProtection(t *testing.T) {
	_, addr := startTestServer(t)

	owner := dialTestClient(t, addr)
	defer owner.conn.Close()
	owner.send("PASS letmein")
	owner.register(t, "owner")
	owner.send("JOIN #secret")
	owner.expect(t, "JOIN :#secret", time.Second)
	owner.send("MODE #secret +k hunter2")

	intruder := dialTestClient(t, addr)
	defer intruder.conn.Close()
	intruder.send("PASS letmein")
	intruder.register(t, "intruder")
	intruder.send("JOIN #secret")
	intruder.expect(t, " 475 ", time.Second)
}

func TestTopicRequiresOpWhenLocked(t *testing.T) {
	_, addr := startTestServer(t)

	owner := dialTestClient(t, addr)
	defer owner.conn.Close()
	owner.send("PASS letmein")
	owner.register(t, "owner")
	owner.send("JOIN #topictest")
	owner.expect(t, "JOIN :#topictest", time.Second)

	other := dialTestClient(t, addr)
	defer other.conn.Close()
	other.send("PASS letmein")
	other.register(t, "other")
	other.send("JOIN #topictest")
	other.expect(t, "JOIN :#topictest", time.Second)

	other.send("TOPIC #topictest :not allowed")
	other.expect(t, " 482 ", time.Second)

	owner.send("TOPIC #topictest :allowed topic")
	owner.expect(t, "TOPIC #topictest allowed topic", time.Second)
}

func TestKickRemovesMemberAndCleansUpChannel(t *testing.T) {
	_, addr := startTestServer(t)

	owner := dialTestClient(t, addr)
	defer owner.conn.Close()
	owner.send("PASS letmein")
	owner.register(t, "owner")
	owner.send("JOIN #kicktest")
	owner.expect(t, "JOIN :#kicktest", time.Second)

	victim := dialTestClient(t, addr)
	defer victim.conn.Close()
	victim.send("PASS letmein")
	victim.register(t, "victim")
	victim.send("JOIN #kicktest")
	victim.expect(t, "JOIN :#kicktest", time.Second)

	owner.send("KICK #kicktest victim :begone")
	victim.expect(t, "KICK #kicktest victim :begone", time.Second)

	owner.send("PART #kicktest")
	owner.send("MODE #kicktest")
	owner.expect(t, " 403 ", time.Second)
}

func TestMultiChannelJoinProcessesEveryChannel(t *testing.T) {
	_, addr := startTestServer(t)

	c := dialTestClient(t, addr)
	defer c.conn.Close()
	c.send("PASS letmein")
	c.register(t, "alice")

	c.send("JOIN #one,#two,#three")
	c.expect(t, "JOIN :#one", time.Second)
	c.expect(t, "JOIN :#two", time.Second)
	c.expect(t, "JOIN :#three", time.Second)
}

func TestAbruptDisconnectBroadcastsQuit(t *testing.T) {
	_, addr := startTestServer(t)

	watcher := dialTestClient(t, addr)
	defer watcher.conn.Close()
	watcher.send("PASS letmein")
	watcher.register(t, "watcher")
	watcher.send("JOIN #leave")
	watcher.expect(t, "JOIN :#leave", time.Second)

	leaver := dialTestClient(t, addr)
	leaver.send("PASS letmein")
	leaver.register(t, "leaver")
	leaver.send("JOIN #leave")
	watcher.expect(t, "JOIN :#leave", time.Second)

	leaver.conn.Close()

	watcher.expect(t, "QUIT :Quit: Connection reset", 2*time.Second)
}
