package relay_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chatrelay/relay/relay"
	"github.com/chatrelay/relay/relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient dials a relay server and reads/writes fixed-envelope
// frames, mirroring the dial-a-real-listener integration style used
// elsewhere in this codebase's test suites.
type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	f, err := relay.ParseFrame(line)
	if err != nil {
		panic(err)
	}
	_ = relay.WriteEnvelope(c.conn, f)
}

func (c *testClient) expect(t *testing.T, contains string, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, relay.EnvelopeSize)
	for time.Now().Before(deadline) {
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			t.Fatalf("read error waiting for %q: %v", contains, err)
		}
		end := 0
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		line := strings.TrimRight(string(buf[:end]), "\r\n")
		if strings.Contains(line, contains) {
			return line
		}
	}
	t.Fatalf("timed out waiting for %q", contains)
	return ""
}

func startTestServer(t *testing.T) (addr string, srv *relay.Server) {
	dir, err := os.MkdirTemp("", "relay-integration-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DataDir = dir
	cfg.OperatorsFile = dir + "/server_opers.txt"
	require.NoError(t, os.WriteFile(cfg.OperatorsFile, []byte("admin;secret\n"), 0o644))

	srv, err = relay.NewServer("test.relay", cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	ln.Close()

	go func() {
		_ = srv.ListenAndServe(addr)
	}()
	time.Sleep(50 * time.Millisecond)
	return addr, srv
}

func register(t *testing.T, c *testClient, nick string) {
	c.send(fmt.Sprintf("NICK %s", nick))
	c.send(fmt.Sprintf("USER %s 0 * :Test User", nick))
	c.expect(t, "001", 2*time.Second)
}

func TestRegistrationWelcome(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	c := dial(t, addr)
	defer c.conn.Close()
	register(t, c, "alice")
}

func TestChannelJoinAndMessage(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	alice := dial(t, addr)
	defer alice.conn.Close()
	bob := dial(t, addr)
	defer bob.conn.Close()

	register(t, alice, "alice")
	register(t, bob, "bob")

	alice.send("JOIN #general")
	alice.expect(t, "353", 2*time.Second)

	bob.send("JOIN #general")
	alice.expect(t, "JOIN #general", 2*time.Second)

	alice.send("PRIVMSG #general :hello there")
	bob.expect(t, "hello there", 2*time.Second)
}

func TestModeratedChannelRequiresVoice(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	alice := dial(t, addr)
	defer alice.conn.Close()
	bob := dial(t, addr)
	defer bob.conn.Close()

	register(t, alice, "alice")
	register(t, bob, "bob")

	alice.send("JOIN #mod")
	alice.expect(t, "353", 2*time.Second)
	bob.send("JOIN #mod")
	alice.expect(t, "JOIN #mod", 2*time.Second)

	alice.send("MODE #mod +m")
	bob.send("PRIVMSG #mod :hi")
	bob.expect(t, "404", 2*time.Second)

	alice.send("MODE #mod +v bob")
	bob.send("PRIVMSG #mod :hi")
	bob.expect(t, "hi", 2*time.Second)
}

func TestOperCredentials(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	alice := dial(t, addr)
	defer alice.conn.Close()
	register(t, alice, "alice")

	alice.send("OPER admin wrong")
	alice.expect(t, "464", 2*time.Second)

	alice.send("OPER admin secret")
	alice.expect(t, "381", 2*time.Second)
}

func TestWhoisReportsIdle(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	alice := dial(t, addr)
	defer alice.conn.Close()
	bob := dial(t, addr)
	defer bob.conn.Close()

	register(t, alice, "alice")
	register(t, bob, "bob")

	alice.send("WHOIS bob")
	alice.expect(t, "317", 2*time.Second)
}

func TestJoinTooManyChannelsRejected(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	c := dial(t, addr)
	defer c.conn.Close()
	register(t, c, "alice")

	for i := 0; i < 20; i++ {
		c.send(fmt.Sprintf("JOIN #chan%d", i))
		c.expect(t, "353", 2*time.Second)
	}

	c.send("JOIN #onemore")
	c.expect(t, "405", 2*time.Second)
}

func TestPingPong(t *testing.T) {
	addr, srv := startTestServer(t)
	defer srv.Shutdown()

	c := dial(t, addr)
	defer c.conn.Close()
	register(t, c, "alice")

	c.send("PING :tok123")
	got := c.expect(t, "PONG", 2*time.Second)
	assert.Contains(t, got, "tok123")
}
