package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDCCFrame(t *testing.T) {
	f, err := ParseDCCFrame(":alice DCC SEND report.pdf 127.0.0.1 5000 2048")
	require.NoError(t, err)
	assert.Equal(t, "alice", f.Prefix)
	assert.Equal(t, DCCSend, f.Command)
	assert.Equal(t, []string{"report.pdf", "127.0.0.1", "5000", "2048"}, f.Parameters)
}

func TestParseDCCFrameNoPrefix(t *testing.T) {
	f, err := ParseDCCFrame("DCC CHAT bob 127.0.0.1 6000")
	require.NoError(t, err)
	assert.Equal(t, "", f.Prefix)
	assert.Equal(t, DCCChat, f.Command)
}

func TestParseDCCFrameInvalid(t *testing.T) {
	_, err := ParseDCCFrame("NOTDCC SEND file")
	assert.Error(t, err)

	_, err = ParseDCCFrame("DCC BOGUS file")
	assert.Error(t, err)
}

func TestDCCFrameSerializeRoundTrip(t *testing.T) {
	f := &DCCFrame{Prefix: "alice", Command: DCCResume, Parameters: []string{"file.bin", "1024"}}
	parsed, err := ParseDCCFrame(f.Serialize())
	require.NoError(t, err)
	assert.Equal(t, f.Command, parsed.Command)
	assert.Equal(t, f.Parameters, parsed.Parameters)
}

func TestTransferRegistryLifecycle(t *testing.T) {
	r := NewTransferRegistry()
	tr, err := r.Start("bob", "file.bin", "/tmp/file.bin", 100)
	require.NoError(t, err)
	assert.Equal(t, TransferPending, tr.State)

	_, err = r.Start("bob", "file.bin", "/tmp/file.bin", 100)
	assert.Error(t, err, "duplicate start should be rejected")

	require.NoError(t, r.Resume("bob", "file.bin", 50))
	ev := <-tr.Events()
	assert.True(t, ev.resume)
	assert.Equal(t, int64(50), ev.offset)

	require.NoError(t, r.Stop("bob", "file.bin"))
	ev = <-tr.Events()
	assert.True(t, ev.stop)

	r.Close("bob", "file.bin")
	_, ok := r.Get("bob", "file.bin")
	assert.False(t, ok)
}
