package relay

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameBasic(t *testing.T) {
	f, err := ParseFrame("NICK alice")
	require.NoError(t, err)
	assert.Equal(t, "NICK", f.Command)
	assert.Equal(t, []string{"alice"}, f.Params)
}

func TestParseFramePrefixAndTrailing(t *testing.T) {
	f, err := ParseFrame(":alice!a@h PRIVMSG #chan :hello there friend")
	require.NoError(t, err)
	assert.Equal(t, "alice!a@h", f.Prefix)
	assert.Equal(t, "PRIVMSG", f.Command)
	assert.Equal(t, []string{"#chan", "hello there friend"}, f.Params)
}

func TestParseFrameErrors(t *testing.T) {
	_, err := ParseFrame("")
	assert.Error(t, err)

	_, err = ParseFrame(":onlyprefix")
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{Prefix: "bob!b@h", Command: "JOIN", Params: []string{"#chan"}}
	parsed, err := ParseFrame(f.String())
	require.NoError(t, err)
	assert.Equal(t, f.Prefix, parsed.Prefix)
	assert.Equal(t, f.Command, parsed.Command)
	assert.Equal(t, f.Params, parsed.Params)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := &Frame{Prefix: "srv", Command: "PING", Params: []string{"tok"}}
	require.NoError(t, WriteEnvelope(&buf, f))
	assert.Equal(t, EnvelopeSize, buf.Len())

	out, err := ReadEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, f.Command, out.Command)
	assert.Equal(t, f.Params, out.Params)
}

func TestHostmask(t *testing.T) {
	nick, user, host := ParseHostmask("alice!user@host.example")
	assert.Equal(t, "alice", nick)
	assert.Equal(t, "user", user)
	assert.Equal(t, "host.example", host)
	assert.Equal(t, "alice!user@host.example", FormatHostmask(nick, user, host))
}
