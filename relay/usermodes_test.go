package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserModeParseAndString(t *testing.T) {
	var m UserMode
	require.NoError(t, m.ParseModeString("+iw"))
	assert.True(t, m.Invisible)
	assert.True(t, m.Wallops)
	assert.False(t, m.Operator)

	require.NoError(t, m.ParseModeString("-i"))
	assert.False(t, m.Invisible)
	assert.Contains(t, m.String(), "w")
}

func TestUserModeUnknownFlag(t *testing.T) {
	var m UserMode
	err := m.ParseModeString("+z")
	assert.Error(t, err)
}
