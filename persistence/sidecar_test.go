package persistence

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) (*Sink, string) {
	dir, err := os.MkdirTemp("", "relay-persist-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sink, err := New(dir)
	require.NoError(t, err)
	return sink, dir
}

func TestSaveThenLoad(t *testing.T) {
	sink, dir := newTestSink(t)
	sink.Enqueue(Event{Op: OpClientSave, Payload: "alice;user;host;srv;Alice;;;"})
	sink.Close()

	lines, err := LoadClients(dir)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "alice;user;host;srv;Alice;;;", lines[0])
}

func TestUpdateReplacesByFirstField(t *testing.T) {
	sink, dir := newTestSink(t)
	sink.Enqueue(Event{Op: OpChannelSave, Payload: "#test;topic;alice;;;;;;;"})
	sink.Enqueue(Event{Op: OpChannelUpdate, ID: "#test", Payload: "#test;newtopic;alice,bob;;;;;;;"})
	sink.Close()

	lines, err := LoadChannels(dir)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "newtopic")
}

func TestDeleteRemovesRecord(t *testing.T) {
	sink, dir := newTestSink(t)
	sink.Enqueue(Event{Op: OpClientSave, Payload: "alice;u;h;s;r;;;"})
	sink.Enqueue(Event{Op: OpClientSave, Payload: "bob;u;h;s;r;;;"})
	sink.Enqueue(Event{Op: OpClientDelete, ID: "alice"})
	sink.Close()

	lines, err := LoadClients(dir)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "bob")
}

func TestEventsAppliedInOrder(t *testing.T) {
	sink, dir := newTestSink(t)
	for i := 0; i < 20; i++ {
		sink.Enqueue(Event{Op: OpChannelUpdate, ID: "#c", Payload: fmt.Sprintf("#c;v%d;;;;;;;;", i)})
	}
	sink.Close()
	lines, err := LoadChannels(dir)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "#c;v19;;;;;;;;", lines[0])
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	dir, err := os.MkdirTemp("", "relay-persist-empty-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	lines, err := LoadClients(dir)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLoadOperators(t *testing.T) {
	dir, err := os.MkdirTemp("", "relay-opers-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := dir + "/server_opers.txt"
	require.NoError(t, os.WriteFile(path, []byte("admin;secret\nroot;hunter2\n"), 0o644))

	creds, err := LoadOperators(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", creds["admin"])
	assert.Equal(t, "hunter2", creds["root"])
}

func TestSinkClosesWithoutDeadlock(t *testing.T) {
	sink, _ := newTestSink(t)
	done := make(chan struct{})
	go func() {
		sink.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
