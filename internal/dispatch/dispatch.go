// Package dispatch implements the per-opcode request handlers described
// in spec.md §4.7, wiring internal/dosfs, internal/handledb and
// internal/protocol together over a parsed internal/frame.Request.
package dispatch

import (
	"encoding/binary"
	"strings"

	"github.com/megapearl/etherdfs/internal/doserr"
	"github.com/megapearl/etherdfs/internal/dosfs"
	"github.com/megapearl/etherdfs/internal/elog"
	"github.com/megapearl/etherdfs/internal/frame"
	"github.com/megapearl/etherdfs/internal/handledb"
	"github.com/megapearl/etherdfs/internal/protocol"
)

// Dispatcher holds the server's mutable-free shared state: the drive
// table (immutable after startup) and the handle table (the one piece
// of state requests actually mutate).
type Dispatcher struct {
	Drives  *protocol.DriveTable
	Handles *handledb.DB
}

// New constructs a Dispatcher.
func New(drives *protocol.DriveTable, handles *handledb.DB) *Dispatcher {
	return &Dispatcher{Drives: drives, Handles: handles}
}

// Handle routes req to its opcode handler, writing payload and AX onto
// reply. It returns doserr.Drop for "ignore" (spec.md §4.7: unrecognized
// opcode, or an unknown drive) — the caller must drop the frame and
// poison the reply-cache slot rather than send anything, per the sum
// type spec.md §9 describes (ok | dosError | drop). Every other AX
// outcome, success included, is written directly onto reply and Handle
// returns nil.
func (d *Dispatcher) Handle(req *frame.Request, reply *frame.Reply) error {
	if !d.Drives.Valid(req.Drive) {
		elog.Debugf("ignoring request for unconfigured drive index %d", req.Drive)
		return doserr.Drop
	}
	drive := d.Drives[req.Drive]

	switch req.Opcode {
	case protocol.OpInstallCheck:
		// ack only, AX already 0.
	case protocol.OpRmdir:
		d.rmdir(req, reply, drive)
	case protocol.OpMkdir:
		d.mkdir(req, reply, drive)
	case protocol.OpChdir:
		d.chdir(req, reply, drive)
	case protocol.OpCloseFile:
		// no-op; handles are LRU-managed, not ref-counted.
	case protocol.OpCommitFile:
		// no-op; every write already lands on the host filesystem.
	case protocol.OpReadFile:
		d.readFile(req, reply)
	case protocol.OpWriteFile:
		d.writeFile(req, reply)
	case protocol.OpLockFile, protocol.OpUnlockFile:
		// advisory only; lying that it succeeded is the whole contract.
	case protocol.OpDiskSpace:
		d.diskSpace(req, reply, drive)
	case protocol.OpSetAttr:
		d.setAttr(req, reply, drive)
	case protocol.OpGetAttr:
		d.getAttr(req, reply, drive)
	case protocol.OpRename:
		d.rename(req, reply, drive)
	case protocol.OpDelete:
		d.delete(req, reply, drive)
	case protocol.OpOpen, protocol.OpCreate, protocol.OpSpecialOpen:
		d.openCreate(req, reply, drive)
	case protocol.OpFindFirst:
		d.findFirst(req, reply, drive)
	case protocol.OpFindNext:
		d.findNext(req, reply, drive)
	case protocol.OpSeekFromEnd:
		d.seekFromEnd(req, reply)
	default:
		elog.Debugf("ignoring unrecognized opcode %#02x", byte(req.Opcode))
		return doserr.Drop
	}
	return nil
}

// hostPath normalizes a DOS path payload and resolves it to a
// case-correct host path under drive.Root (spec.md §4.7's "path
// normalization for all path-bearing opcodes"). The returned path is
// always usable even on resolution failure (the literal remainder is
// appended, per §4.5 step 3); callers that must fail on unresolved
// paths check the returned error.
func hostPath(drive *protocol.Drive, raw string) (string, error) {
	norm := dosfs.NormalizeDOSPath(raw)
	full := drive.Root
	if norm != "" {
		full = drive.Root + "/" + strings.TrimLeft(norm, "/")
	}
	return dosfs.ResolveShortToLong(full, drive.Root)
}

// explodePath splits a normalized DOS path (possibly containing a
// trailing FCB mask, e.g. "dir/sub/file????.???") into its directory
// portion and final-component mask, porting ethersrv.c's explodepath.
func explodePath(norm string) (dir, mask string) {
	idx := strings.LastIndexByte(norm, '/')
	if idx < 0 {
		return "", norm
	}
	return norm[:idx], norm[idx+1:]
}

func (d *Dispatcher) rmdir(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	path, _ := hostPath(drive, string(req.Payload))
	if err := dosfs.RmDir(path); err != nil {
		elog.Debugf("RMDIR %s: %v", path, err)
		reply.SetAX(protocol.AXWriteFault)
	}
}

func (d *Dispatcher) mkdir(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	path, _ := hostPath(drive, string(req.Payload))
	if err := dosfs.MkDir(path); err != nil {
		elog.Debugf("MKDIR %s: %v", path, err)
		reply.SetAX(protocol.AXWriteFault)
	}
}

func (d *Dispatcher) chdir(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	path, err := hostPath(drive, string(req.Payload))
	if err != nil {
		reply.SetAX(protocol.AXPathNotFound)
		return
	}
	if err := dosfs.ChDir(path); err != nil {
		elog.Debugf("CHDIR %s: %v", path, err)
		reply.SetAX(protocol.AXPathNotFound)
	}
}

func (d *Dispatcher) readFile(req *frame.Request, reply *frame.Reply) {
	if len(req.Payload) != 8 {
		return
	}
	offset := binary.LittleEndian.Uint32(req.Payload[0:4])
	fileID := binary.LittleEndian.Uint16(req.Payload[4:6])
	length := binary.LittleEndian.Uint16(req.Payload[6:8])

	path, ok := d.Handles.Lookup(fileID)
	if !ok {
		reply.SetAX(protocol.AXAccessDenied)
		return
	}
	data, err := dosfs.ReadFile(path, offset, length)
	if err != nil {
		elog.Debugf("READFIL #%d %s: %v", fileID, path, err)
		reply.SetAX(protocol.AXAccessDenied)
		return
	}
	reply.AppendBytes(data)
}

func (d *Dispatcher) writeFile(req *frame.Request, reply *frame.Reply) {
	if len(req.Payload) < 6 {
		return
	}
	offset := binary.LittleEndian.Uint32(req.Payload[0:4])
	fileID := binary.LittleEndian.Uint16(req.Payload[4:6])
	data := req.Payload[6:]

	path, ok := d.Handles.Lookup(fileID)
	if !ok {
		reply.SetAX(protocol.AXAccessDenied)
		return
	}
	n, err := dosfs.WriteFile(path, offset, data)
	if err != nil {
		elog.Debugf("WRITEFIL #%d %s: %v", fileID, path, err)
		reply.SetAX(protocol.AXAccessDenied)
		return
	}
	reply.AppendUint16LE(uint16(n))
}

// diskSpaceCap is the 2 GiB - 1 ceiling DOS clients tolerate for
// DISKSPACE totals (spec.md §4.7's DISKSPACE sizing rule).
const diskSpaceCap = 2147483647

func (d *Dispatcher) diskSpace(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	total, free, err := dosfs.DiskSpace(drive.Root)
	if err != nil {
		elog.Debugf("DISKSPACE %s: %v", drive.Root, err)
		total, free = 0, 0
	}
	if total > diskSpaceCap {
		total = diskSpaceCap
	}
	if free > diskSpaceCap {
		free = diskSpaceCap
	}
	reply.SetAX(1) // media id high byte / sectors-per-cluster low byte: DOS tolerates only 1
	reply.AppendUint16LE(uint16(total >> 15))
	reply.AppendUint16LE(32768)
	reply.AppendUint16LE(uint16(free >> 15))
}

func (d *Dispatcher) setAttr(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) < 2 {
		return
	}
	attr := req.Payload[0]
	path, err := hostPath(drive, string(req.Payload[1:]))
	if err != nil {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	if err := dosfs.SetAttr(path, attr, drive.IsFAT); err != nil {
		elog.Debugf("SETATTR %s: %v", path, err)
		reply.SetAX(protocol.AXFileNotFound)
	}
}

func (d *Dispatcher) getAttr(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) == 0 {
		return
	}
	path, err := hostPath(drive, string(req.Payload))
	if err != nil {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	attr, fp, err := dosfs.GetAttr(path, drive.IsFAT)
	if err != nil || attr == 0xFF {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	reply.AppendUint32LE(fp.DOSTime)
	reply.AppendUint32LE(fp.Size)
	reply.AppendByte(fp.Attr)
}

func (d *Dispatcher) rename(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) < 3 {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	n1 := int(req.Payload[0])
	if len(req.Payload) < 1+n1 {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	rawSrc := string(req.Payload[1 : 1+n1])
	rawDst := string(req.Payload[1+n1:])

	hostSrc, err := hostPath(drive, rawSrc)
	if err != nil {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}

	// the destination is never resolved through ResolveShortToLong: the
	// raw, normalized DOS-form path is used directly for both the
	// existence probe and the actual rename, mirroring ethersrv.c's two
	// unresolved uses of fn2. This means a destination that exists only
	// under a different case is missed by the probe (the rename then
	// creates a second, lower-case entry), and a destination whose
	// directory components differ in case from the host entries makes
	// the rename call fail against a case-sensitive host filesystem.
	dstNorm := dosfs.NormalizeDOSPath(rawDst)
	hostDst := drive.Root
	if dstNorm != "" {
		hostDst = drive.Root + "/" + strings.TrimLeft(dstNorm, "/")
	}
	if _, _, err := dosfs.GetAttr(hostDst, drive.IsFAT); err == nil {
		elog.Debugf("RENAME %s -> %s: destination exists", hostSrc, hostDst)
		reply.SetAX(protocol.AXAccessDenied)
		return
	}
	if err := dosfs.Rename(hostSrc, hostDst); err != nil {
		elog.Debugf("RENAME %s -> %s: %v", hostSrc, hostDst, err)
		reply.SetAX(protocol.AXAccessDenied)
	}
}

func (d *Dispatcher) delete(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	norm := dosfs.NormalizeDOSPath(string(req.Payload))
	dirPart, mask := explodePath(norm)

	dirFull := drive.Root
	if dirPart != "" {
		dirFull = drive.Root + "/" + dirPart
	}
	hostDir, err := dosfs.ResolveShortToLong(dirFull, drive.Root)
	if err != nil {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}

	// a literal (non-wildcard) target that still resolves gets its
	// read-only bit checked before deletion; a wildcard mask never
	// resolves as a single path and falls through to the match loop.
	if resolved, resErr := hostPath(drive, string(req.Payload)); resErr == nil {
		if attr, _, attrErr := dosfs.GetAttr(resolved, drive.IsFAT); attrErr == nil && attr&protocol.AttrReadOnly != 0 {
			reply.SetAX(protocol.AXAccessDenied)
			return
		}
	}

	if err := dosfs.DeleteMatching(hostDir, mask); err != nil {
		elog.Debugf("DELETE %s/%s: %v", hostDir, mask, err)
		reply.SetAX(protocol.AXFileNotFound)
	}
}

// openCreate handles OPEN (0x16), CREATE (0x17) and SPOPNFIL (0x2E) —
// the combined handler spec.md §4.7 calls for, since all three share a
// payload layout and differ only in their action-decoding rules.
func (d *Dispatcher) openCreate(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) < 6 {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	stackAttr := binary.LittleEndian.Uint16(req.Payload[0:2])
	actionCode := binary.LittleEndian.Uint16(req.Payload[2:4])
	spOpenMode := binary.LittleEndian.Uint16(req.Payload[4:6])
	rawPath := string(req.Payload[6:])

	norm := dosfs.NormalizeDOSPath(rawPath)
	dirPart, namePart := explodePath(norm)
	dirFull := drive.Root
	if dirPart != "" {
		dirFull = drive.Root + "/" + dirPart
	}
	hostDir, err := dosfs.ResolveShortToLong(dirFull, drive.Root)
	if err != nil || dosfs.ChDir(hostDir) != nil {
		reply.SetAX(protocol.AXPathNotFound)
		return
	}

	fullPath := drive.Root
	if norm != "" {
		fullPath = drive.Root + "/" + norm
	}
	hostFull, resolveErr := dosfs.ResolveShortToLong(fullPath, drive.Root)
	if resolveErr != nil {
		hostFull = hostDir + "/" + namePart
	} else {
		// the resolved host path carries the case-correct final
		// component; use it in place of the client's literal name
		// (ethersrv.c's copy_after_last_slash after a successful
		// shorttolong on the full path).
		namePart = baseOf(hostFull)
	}

	var (
		fp         protocol.FileProps
		resOpenMode byte
		spOpenRes  uint16
		failed     bool
	)

	switch req.Opcode {
	case protocol.OpCreate:
		resOpenMode = 2
		var createErr error
		hostFull, fp, createErr = dosfs.CreateFile(hostDir, namePart, byte(stackAttr), drive.IsFAT)
		failed = createErr != nil

	case protocol.OpSpecialOpen:
		resOpenMode = byte(spOpenMode & 0x7F)
		attr, existingProps, getErr := dosfs.GetAttr(hostFull, drive.IsFAT)
		switch {
		case getErr != nil || attr == 0xFF:
			if actionCode&0xF0 == 0x10 {
				var createErr error
				hostFull, fp, createErr = dosfs.CreateFile(hostDir, namePart, byte(stackAttr), drive.IsFAT)
				failed = createErr != nil
				if !failed {
					spOpenRes = 2 // created
				}
			} else {
				failed = true
			}
		case attr&(protocol.AttrVolume|protocol.AttrDirectory) != 0:
			failed = true
		case actionCode&0x0F == 1:
			fp = existingProps
			spOpenRes = 1 // opened
		case actionCode&0x0F == 2:
			var createErr error
			hostFull, fp, createErr = dosfs.CreateFile(hostDir, namePart, byte(stackAttr), drive.IsFAT)
			failed = createErr != nil
			if !failed {
				spOpenRes = 3 // truncated
			}
		default:
			failed = true
		}

	default: // OpOpen
		resOpenMode = byte(stackAttr)
		attr, existingProps, getErr := dosfs.GetAttr(hostFull, drive.IsFAT)
		if getErr == nil && attr != 0xFF && attr&(protocol.AttrVolume|protocol.AttrDirectory) == 0 {
			fp = existingProps
		} else {
			failed = true
		}
	}

	if failed {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}

	fileID := d.Handles.Intern(hostFull)
	if fileID == protocol.InvalidHandle {
		elog.Errorf("OPEN/CREATE %s: handle table exhausted", hostFull)
		reply.SetAX(protocol.AXFileNotFound)
		return
	}

	reply.AppendFileProps(fp)
	reply.AppendUint16LE(fileID)
	reply.AppendUint16LE(spOpenRes)
	reply.AppendByte(resOpenMode)
}

func (d *Dispatcher) findFirst(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) < 1 {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	attr := req.Payload[0]
	norm := dosfs.NormalizeDOSPath(string(req.Payload[1:]))
	dirPart, maskPart := explodePath(norm)

	dirFull := drive.Root
	if dirPart != "" {
		dirFull = drive.Root + "/" + dirPart
	}
	hostDir, _ := dosfs.ResolveShortToLong(dirFull, drive.Root) // fall through on error; ListDir below then fails on the unresolved path

	fcbMask := dosfs.FilenameToFCB(maskPart)
	isRoot := dosfs.IsRoot(drive.Root, hostDir)
	dirID := d.Handles.Intern(hostDir)

	list, err := dosfs.ListDir(hostDir, drive.IsFAT)
	if err != nil {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	d.Handles.SetDirListing(dirID, list)

	cand, cursor, found := dosfs.FindMatch(list, fcbMask, attr, 0, isRoot)
	if !found {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	reply.AppendFileProps(cand)
	reply.AppendUint16LE(dirID)
	reply.AppendUint16LE(uint16(cursor))
}

func (d *Dispatcher) findNext(req *frame.Request, reply *frame.Reply, drive *protocol.Drive) {
	if len(req.Payload) < 16 {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	dirID := binary.LittleEndian.Uint16(req.Payload[0:2])
	cursor := binary.LittleEndian.Uint16(req.Payload[2:4])
	attr := req.Payload[4]
	var fcbMask [11]byte
	copy(fcbMask[:], req.Payload[5:16])

	dirPath, ok := d.Handles.Lookup(dirID)
	if !ok {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	list, ok := d.Handles.DirListing(dirID)
	if !ok {
		var err error
		list, err = dosfs.ListDir(dirPath, drive.IsFAT)
		if err != nil {
			reply.SetAX(protocol.AXNoMoreFiles)
			return
		}
		d.Handles.SetDirListing(dirID, list)
	}
	isRoot := dosfs.IsRoot(drive.Root, dirPath)

	cand, newCursor, found := dosfs.FindMatch(list, fcbMask, attr, int(cursor), isRoot)
	if !found {
		reply.SetAX(protocol.AXNoMoreFiles)
		return
	}
	reply.AppendFileProps(cand)
	reply.AppendUint16LE(dirID)
	reply.AppendUint16LE(uint16(newCursor))
}

func (d *Dispatcher) seekFromEnd(req *frame.Request, reply *frame.Reply) {
	if len(req.Payload) != 6 {
		return
	}
	offs := int32(binary.LittleEndian.Uint32(req.Payload[0:4]))
	fileID := binary.LittleEndian.Uint16(req.Payload[4:6])
	if offs > 0 {
		offs = 0
	}

	path, ok := d.Handles.Lookup(fileID)
	if !ok {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	size, err := dosfs.FileSize(path)
	if err != nil {
		reply.SetAX(protocol.AXFileNotFound)
		return
	}
	result := size + int64(offs)
	if result < 0 {
		result = 0
	}
	reply.AppendUint32LE(uint32(result))
}

func baseOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
