package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelFirstJoinerBecomesOperator(t *testing.T) {
	ch := NewChannel("#test")
	require.Nil(t, ch.CheckAdmission("alice", "", false))
	ch.AddMember("alice")
	assert.True(t, ch.IsOperator("alice"))

	ch.AddMember("bob")
	assert.False(t, ch.IsOperator("bob"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, ch.Members())
}

func TestChannelAdmissionOrder(t *testing.T) {
	ch := NewChannel("#priv")
	ch.SetBan("mallory", true)
	err := ch.CheckAdmission("mallory", "", true)
	require.NotNil(t, err)
	assert.Equal(t, ERR_BANNEDFROMCHAN, err.Numeric)

	ch.ApplyMode(ModeInviteOnly, true, "")
	err = ch.CheckAdmission("carol", "", false)
	require.NotNil(t, err)
	assert.Equal(t, ERR_INVITEONLYCHAN, err.Numeric)

	err = ch.CheckAdmission("carol", "", true)
	assert.Nil(t, err)
}

func TestChannelLimit(t *testing.T) {
	ch := NewChannel("#limited")
	_, err := ch.ApplyMode(ModeLimit, true, "1")
	require.Nil(t, err)
	ch.AddMember("alice")
	admitErr := ch.CheckAdmission("bob", "", false)
	require.NotNil(t, admitErr)
	assert.Equal(t, ERR_CHANNELISFULL, admitErr.Numeric)
}

func TestChannelPersistRoundTrip(t *testing.T) {
	ch := NewChannel("#persist")
	ch.SetTopic("hello")
	ch.AddMember("alice")
	ch.AddMember("bob")
	ch.SetVoice("bob", true)
	line := ch.PersistLine()
	assert.Contains(t, line, "#persist;hello;")

	restored := channelFromPersistLine(line)
	require.NotNil(t, restored)
	assert.Equal(t, "hello", restored.Topic())
	assert.ElementsMatch(t, []string{"alice", "bob"}, restored.Members())
	assert.True(t, restored.IsOperator("alice"))
	assert.False(t, restored.IsOperator("bob"))
	assert.True(t, restored.IsVoiced("bob"))
}

func TestChannelRemoveMemberEmpties(t *testing.T) {
	ch := NewChannel("#solo")
	ch.AddMember("alice")
	empty := ch.RemoveMember("alice")
	assert.True(t, empty)
	assert.False(t, ch.IsMember("alice"))
}

func TestChannelKeySetTwiceRejected(t *testing.T) {
	ch := NewChannel("#keyed")
	_, err := ch.ApplyMode(ModeKey, true, "first")
	require.Nil(t, err)

	_, err = ch.ApplyMode(ModeKey, true, "second")
	require.NotNil(t, err)
	assert.Equal(t, ERR_KEYSET, err.Numeric)

	_, err = ch.ApplyMode(ModeKey, false, "")
	require.Nil(t, err)
	_, err = ch.ApplyMode(ModeKey, true, "third")
	assert.Nil(t, err)
}
