package server_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megapearl/etherdfs/internal/dispatch"
	"github.com/megapearl/etherdfs/internal/frame"
	"github.com/megapearl/etherdfs/internal/handledb"
	"github.com/megapearl/etherdfs/internal/linkdriver"
	"github.com/megapearl/etherdfs/internal/protocol"
	"github.com/megapearl/etherdfs/internal/server"
)

var serverMAC = [6]byte{0, 1, 2, 3, 4, 5}

func buildRawFrame(seq byte, drive int, opcode protocol.Opcode, payload []byte) []byte {
	buf := make([]byte, frame.HeaderLen+len(payload))
	copy(buf[0:6], serverMAC[:])
	copy(buf[6:12], []byte{9, 8, 7, 6, 5, 4}) // src (client) MAC
	binary.BigEndian.PutUint16(buf[12:14], protocol.EtherType)
	binary.LittleEndian.PutUint16(buf[52:54], uint16(len(buf)))
	buf[56] = protocol.Version
	buf[57] = seq
	buf[58] = byte(drive)
	buf[59] = byte(opcode)
	copy(buf[60:], payload)
	return buf
}

func newTestServer(root string) (*server.Server, *linkdriver.FakePair) {
	var table protocol.DriveTable
	table[protocol.FirstDriveIndex] = &protocol.Drive{Root: root}
	disp := dispatch.New(&table, handledb.New())

	pair := linkdriver.NewFakePair(serverMAC, [6]byte{9, 8, 7, 6, 5, 4})
	return server.New(pair.Server, disp), pair
}

func stopAndWait(t *testing.T, srv *server.Server, pair *linkdriver.FakePair, done chan error) {
	t.Helper()
	srv.Stop()
	require.NoError(t, pair.Server.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after Stop+Close")
	}
}

func TestServerRespondsToInstallCheck(t *testing.T) {
	srv, pair := newTestServer(t.TempDir())
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	require.NoError(t, pair.Client.Send(buildRawFrame(1, protocol.FirstDriveIndex, protocol.OpInstallCheck, nil)))

	buf := make([]byte, frame.MaxFrameLen)
	n, err := pair.Client.Recv(buf)
	require.NoError(t, err)
	out := buf[:n]
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))

	stopAndWait(t, srv, pair, done)
}

func TestServerReplaysCachedReplyOnRetransmit(t *testing.T) {
	srv, pair := newTestServer(t.TempDir())
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	mkdirReq := buildRawFrame(7, protocol.FirstDriveIndex, protocol.OpMkdir, []byte("sub"))

	require.NoError(t, pair.Client.Send(mkdirReq))
	buf := make([]byte, frame.MaxFrameLen)
	n, err := pair.Client.Recv(buf)
	require.NoError(t, err)
	first := append([]byte(nil), buf[:n]...)
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(first[58:60]))

	// same seq again: a fresh dispatch of MKDIR against an already-existing
	// directory would return AXWriteFault, so an AXOk here proves the
	// server replayed the cached reply instead of re-dispatching.
	require.NoError(t, pair.Client.Send(mkdirReq))
	n2, err := pair.Client.Recv(buf)
	require.NoError(t, err)
	second := buf[:n2]
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(second[58:60]))
	assert.Equal(t, first, second)

	stopAndWait(t, srv, pair, done)
}

func TestServerStopHaltsTheLoop(t *testing.T) {
	srv, pair := newTestServer(t.TempDir())
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	stopAndWait(t, srv, pair, done)
}
