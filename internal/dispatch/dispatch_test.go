package dispatch_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megapearl/etherdfs/internal/dispatch"
	"github.com/megapearl/etherdfs/internal/frame"
	"github.com/megapearl/etherdfs/internal/handledb"
	"github.com/megapearl/etherdfs/internal/protocol"
)

var localMAC = [6]byte{0, 1, 2, 3, 4, 5}
var clientMAC = [6]byte{9, 8, 7, 6, 5, 4}

func buildFrame(t *testing.T, seq byte, drive int, opcode protocol.Opcode, payload []byte) *frame.Request {
	t.Helper()
	buf := make([]byte, frame.HeaderLen+len(payload))
	copy(buf[0:6], localMAC[:])
	copy(buf[6:12], clientMAC[:])
	binary.BigEndian.PutUint16(buf[12:14], protocol.EtherType)
	binary.LittleEndian.PutUint16(buf[52:54], uint16(len(buf)))
	buf[56] = protocol.Version
	buf[57] = seq
	buf[58] = byte(drive)
	buf[59] = byte(opcode)
	copy(buf[60:], payload)

	req, ok := frame.Parse(buf, localMAC)
	require.True(t, ok)
	return req
}

func newDispatcherForRoot(root string, isFAT bool) (*dispatch.Dispatcher, *protocol.DriveTable) {
	var table protocol.DriveTable
	table[protocol.FirstDriveIndex] = &protocol.Drive{Root: root, IsFAT: isFAT}
	return dispatch.New(&table, handledb.New()), &table
}

func TestInstallCheckAcks(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpInstallCheck, nil)
	reply := frame.NewReply(req, localMAC)
	err := d.Handle(req, reply)
	require.NoError(t, err)
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))
}

func TestUnconfiguredDriveIsDropped(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex+1, protocol.OpInstallCheck, nil)
	reply := frame.NewReply(req, localMAC)
	err := d.Handle(req, reply)
	assert.Error(t, err)
}

func TestUnknownOpcodeIsDropped(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.Opcode(0xFE), nil)
	reply := frame.NewReply(req, localMAC)
	err := d.Handle(req, reply)
	assert.Error(t, err)
}

func TestDiskSpaceReportsMediaAndClusterSize(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpDiskSpace, nil)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)

	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[58:60]))
	assert.Equal(t, uint16(32768), binary.LittleEndian.Uint16(out[62:64]))
}

func TestGetAttrCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ReadMe.TXT"), []byte("hello"), 0644))
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpGetAttr, []byte("readme.txt"))
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)

	ax := binary.LittleEndian.Uint16(out[58:60])
	assert.Equal(t, uint16(protocol.AXOk), ax)
	size := binary.LittleEndian.Uint32(out[64:68])
	assert.Equal(t, uint32(5), size)
}

func TestGetAttrMissingFile(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpGetAttr, []byte("nosuch.txt"))
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXFileNotFound), binary.LittleEndian.Uint16(out[58:60]))
}

func TestFindFirstFindNextSequenceEndsInNoMoreFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "world.bin"), make([]byte, 3), 0644))
	d, _ := newDispatcherForRoot(root, false)

	ffPayload := append([]byte{0}, []byte("*.*")...)
	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpFindFirst, ffPayload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))

	payload := out[60:]
	require.Len(t, payload, 24)
	dirID := binary.LittleEndian.Uint16(out[len(out)-4 : len(out)-2])
	cursor := binary.LittleEndian.Uint16(out[len(out)-2:])
	assert.Equal(t, "HELLO   TXT", string(payload[1:12]))

	// FINDNEXT: dirId, cursor, attr, fcb[11] all-wildcard
	var wildcard [11]byte
	for i := range wildcard {
		wildcard[i] = '?'
	}
	fnPayload := make([]byte, 16)
	binary.LittleEndian.PutUint16(fnPayload[0:2], dirID)
	binary.LittleEndian.PutUint16(fnPayload[2:4], cursor)
	copy(fnPayload[5:16], wildcard[:])

	req2 := buildFrame(t, 2, protocol.FirstDriveIndex, protocol.OpFindNext, fnPayload)
	reply2 := frame.NewReply(req2, localMAC)
	require.NoError(t, d.Handle(req2, reply2))
	out2 := reply2.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out2[58:60]))
	assert.Equal(t, "WORLD   BIN", string(out2[61:72]))
	cursor2 := binary.LittleEndian.Uint16(out2[len(out2)-2:])

	// a third FINDNEXT must exhaust the listing
	binary.LittleEndian.PutUint16(fnPayload[2:4], cursor2)
	req3 := buildFrame(t, 3, protocol.FirstDriveIndex, protocol.OpFindNext, fnPayload)
	reply3 := frame.NewReply(req3, localMAC)
	require.NoError(t, d.Handle(req3, reply3))
	out3 := reply3.Finish(false)
	assert.Equal(t, uint16(protocol.AXNoMoreFiles), binary.LittleEndian.Uint16(out3[58:60]))
}

func TestDeleteWildcardRemovesAllMatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.tmp"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.tmp"), []byte("2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("3"), 0644))
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpDelete, []byte("?.tmp"))
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestOpenCreateRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	createPayload := make([]byte, 6)
	createPayload = append(createPayload, []byte("newfile.dat")...)
	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpCreate, createPayload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))

	_, err := os.Stat(filepath.Join(root, "newfile.dat"))
	assert.NoError(t, err)
}

func TestChdirRejectsMissingDirectory(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpChdir, []byte("nosuchdir"))
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXPathNotFound), binary.LittleEndian.Uint16(out[58:60]))
}

func TestRmdirMkdirRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	mkReq := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpMkdir, []byte("sub"))
	mkReply := frame.NewReply(mkReq, localMAC)
	require.NoError(t, d.Handle(mkReq, mkReply))
	out := mkReply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))
	_, err := os.Stat(filepath.Join(root, "sub"))
	require.NoError(t, err)

	rmReq := buildFrame(t, 2, protocol.FirstDriveIndex, protocol.OpRmdir, []byte("sub"))
	rmReply := frame.NewReply(rmReq, localMAC)
	require.NoError(t, d.Handle(rmReq, rmReply))
	out2 := rmReply.Finish(false)
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out2[58:60]))
	_, err = os.Stat(filepath.Join(root, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestLockUnlockAlwaysAck(t *testing.T) {
	root := t.TempDir()
	d, _ := newDispatcherForRoot(root, false)

	for i, op := range []protocol.Opcode{protocol.OpLockFile, protocol.OpUnlockFile} {
		req := buildFrame(t, byte(i+1), protocol.FirstDriveIndex, op, nil)
		reply := frame.NewReply(req, localMAC)
		require.NoError(t, d.Handle(req, reply))
		out := reply.Finish(false)
		assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))
	}
}

func TestRenameMovesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0644))
	d, _ := newDispatcherForRoot(root, false)

	src := []byte("old.txt")
	dst := []byte("new.txt")
	payload := append([]byte{byte(len(src))}, append(append([]byte{}, src...), dst...)...)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpRename, payload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))

	_, err := os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.NoError(t, err)
}

func TestRenameRejectsExistingDestination(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("y"), 0644))
	d, _ := newDispatcherForRoot(root, false)

	src := []byte("old.txt")
	dst := []byte("new.txt")
	payload := append([]byte{byte(len(src))}, append(append([]byte{}, src...), dst...)...)

	req := buildFrame(t, 1, protocol.FirstDriveIndex, protocol.OpRename, payload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	assert.Equal(t, uint16(protocol.AXAccessDenied), binary.LittleEndian.Uint16(out[58:60]))
}

// openExisting drives OPEN against an already-present file and returns the
// fileID the server interned for it.
func openExisting(t *testing.T, d *dispatch.Dispatcher, seq byte, name string) uint16 {
	t.Helper()
	payload := make([]byte, 6)
	payload = append(payload, []byte(name)...)
	req := buildFrame(t, seq, protocol.FirstDriveIndex, protocol.OpOpen, payload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))
	payloadOut := out[60:]
	require.Len(t, payloadOut, 25)
	return binary.LittleEndian.Uint16(payloadOut[20:22])
}

func TestReadWriteFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.bin"), make([]byte, 4), 0644))
	d, _ := newDispatcherForRoot(root, false)

	fileID := openExisting(t, d, 1, "data.bin")

	wrPayload := make([]byte, 6)
	binary.LittleEndian.PutUint16(wrPayload[4:6], fileID)
	wrPayload = append(wrPayload, []byte("abcd")...)
	wrReq := buildFrame(t, 2, protocol.FirstDriveIndex, protocol.OpWriteFile, wrPayload)
	wrReply := frame.NewReply(wrReq, localMAC)
	require.NoError(t, d.Handle(wrReq, wrReply))
	wrOut := wrReply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(wrOut[58:60]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(wrOut[60:62]))

	rdPayload := make([]byte, 8)
	binary.LittleEndian.PutUint16(rdPayload[4:6], fileID)
	binary.LittleEndian.PutUint16(rdPayload[6:8], 4)
	rdReq := buildFrame(t, 3, protocol.FirstDriveIndex, protocol.OpReadFile, rdPayload)
	rdReply := frame.NewReply(rdReq, localMAC)
	require.NoError(t, d.Handle(rdReq, rdReply))
	rdOut := rdReply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(rdOut[58:60]))
	assert.Equal(t, []byte("abcd"), rdOut[60:64])
}

func TestSeekFromEndReturnsFileSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sized.bin"), make([]byte, 10), 0644))
	d, _ := newDispatcherForRoot(root, false)

	fileID := openExisting(t, d, 1, "sized.bin")

	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[4:6], fileID)
	req := buildFrame(t, 2, protocol.FirstDriveIndex, protocol.OpSeekFromEnd, payload)
	reply := frame.NewReply(req, localMAC)
	require.NoError(t, d.Handle(req, reply))
	out := reply.Finish(false)
	require.Equal(t, uint16(protocol.AXOk), binary.LittleEndian.Uint16(out[58:60]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(out[60:64]))
}
