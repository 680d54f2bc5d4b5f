// Package frame implements the EtherDFS frame codec: header layout,
// validation, BSD checksum, and reply assembly (spec.md §4.1).
package frame

import (
	"encoding/binary"

	"github.com/megapearl/etherdfs/internal/elog"
	"github.com/megapearl/etherdfs/internal/protocol"
)

// HeaderLen is the fixed header size every frame begins with.
const HeaderLen = 60

// MaxFrameLen is the largest frame this server will ever build or
// accept (spec.md §5: "one receive buffer of <= 2048 bytes").
const MaxFrameLen = 2048

// Byte offsets within the 60-byte header.
const (
	offDstMAC      = 0
	offSrcMAC      = 6
	offEtherType   = 12
	offPayloadLen  = 52
	offChecksum    = 54
	offProtocol    = 56
	offSeq         = 57
	offDriveFlags  = 58
	offOpcode      = 59
	offAX          = 58 // AX overlaps the echoed drive/opcode field (spec.md §4.1, §9)
)

var broadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Request is a parsed, validated incoming frame.
type Request struct {
	Raw       []byte // the full, authoritative-length frame (headers + payload)
	SrcMAC    [6]byte
	Seq       byte
	Drive     int
	Opcode    protocol.Opcode
	ChecksumOn bool
	Payload   []byte // bytes after the 60-byte header
}

// Parse validates a just-received frame per spec.md §4.1's ordered
// checks, returning ok=false if any check fails (the frame must be
// silently dropped).
func Parse(buf []byte, localMAC [6]byte) (*Request, bool) {
	if len(buf) < HeaderLen {
		return nil, false
	}
	var dst [6]byte
	copy(dst[:], buf[offDstMAC:offDstMAC+6])
	if dst != localMAC && dst != broadcastMAC {
		return nil, false
	}
	if binary.BigEndian.Uint16(buf[offEtherType:offEtherType+2]) != protocol.EtherType {
		return nil, false
	}
	protoByte := buf[offProtocol]
	if protoByte&0x7F != protocol.Version {
		return nil, false
	}
	length := len(buf)
	if embedded := binary.LittleEndian.Uint16(buf[offPayloadLen : offPayloadLen+2]); embedded != 0 {
		if int(embedded) > length || embedded < HeaderLen {
			return nil, false
		}
		length = int(embedded)
	}
	buf = buf[:length]

	checksumOn := protoByte&0x80 != 0
	if checksumOn {
		want := binary.LittleEndian.Uint16(buf[offChecksum : offChecksum+2])
		got := bsdSum(buf[offProtocol:])
		if got != want {
			elog.Debugf("checksum mismatch: computed %#04x received %#04x", got, want)
			return nil, false
		}
	}

	req := &Request{
		Raw:        buf,
		Seq:        buf[offSeq],
		Drive:      int(buf[offDriveFlags] & 0x1F),
		Opcode:     protocol.Opcode(buf[offOpcode]),
		ChecksumOn: checksumOn,
		Payload:    buf[HeaderLen:],
	}
	copy(req.SrcMAC[:], buf[offSrcMAC:offSrcMAC+6])
	return req, true
}

// Reply is the reply frame under construction: the first 60 bytes are
// copied from the request (with MACs swapped and AX cleared), and the
// dispatcher appends payload bytes after offset 60.
type Reply struct {
	buf []byte
}

// NewReply starts a reply by echoing req's header and swapping the MACs,
// per spec.md §4.1's reply framing rule.
func NewReply(req *Request, localMAC [6]byte) *Reply {
	buf := make([]byte, HeaderLen, MaxFrameLen)
	copy(buf, req.Raw[:HeaderLen])
	copy(buf[offDstMAC:offDstMAC+6], req.SrcMAC[:])
	copy(buf[offSrcMAC:offSrcMAC+6], localMAC[:])
	binary.LittleEndian.PutUint16(buf[offAX:offAX+2], protocol.AXOk)
	return &Reply{buf: buf}
}

// SetAX sets the reply's AX result code.
func (r *Reply) SetAX(ax uint16) {
	binary.LittleEndian.PutUint16(r.buf[offAX:offAX+2], ax)
}

// AppendByte appends one payload byte.
func (r *Reply) AppendByte(b byte) { r.buf = append(r.buf, b) }

// AppendBytes appends raw payload bytes.
func (r *Reply) AppendBytes(b []byte) { r.buf = append(r.buf, b...) }

// AppendUint16LE appends a little-endian uint16.
func (r *Reply) AppendUint16LE(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	r.buf = append(r.buf, b[:]...)
}

// AppendUint32LE appends a little-endian uint32.
func (r *Reply) AppendUint32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	r.buf = append(r.buf, b[:]...)
}

// AppendFileProps appends a FileProps record in the attr, fcb[11],
// dosTime, size order shared by FINDFIRST/FINDNEXT/OPEN/CREATE/SPOPNFIL
// (spec.md §4.7's payload-out column for those opcodes). GETATTR uses a
// different field order and appends its fields individually instead.
func (r *Reply) AppendFileProps(fp protocol.FileProps) {
	r.AppendByte(fp.Attr)
	r.AppendBytes(fp.FCBName[:])
	r.AppendUint32LE(fp.DOSTime)
	r.AppendUint32LE(fp.Size)
}

// Finish writes the total length into bytes 52..53 and, if cksumOn,
// computes and writes the BSD checksum and sets the checksum flag bit;
// otherwise it clears the checksum field and flag. Returns the final
// frame bytes.
func (r *Reply) Finish(cksumOn bool) []byte {
	binary.LittleEndian.PutUint16(r.buf[offPayloadLen:offPayloadLen+2], uint16(len(r.buf)))
	if cksumOn {
		sum := bsdSum(r.buf[offProtocol:])
		binary.LittleEndian.PutUint16(r.buf[offChecksum:offChecksum+2], sum)
		r.buf[offProtocol] |= 0x80
	} else {
		r.buf[offChecksum] = 0
		r.buf[offChecksum+1] = 0
		r.buf[offProtocol] &= 0x7F
	}
	return r.buf
}

// bsdSum computes the rotate-and-add 16-bit running checksum described
// in spec.md §4.1, over the bytes starting at offset 56 of the frame
// (the slice passed in must already start there).
func bsdSum(b []byte) uint16 {
	var acc uint16
	for _, c := range b {
		acc = (acc << 15) | (acc >> 1)
		acc += uint16(c)
	}
	return acc
}

// DumpHex renders frame as a 16-bytes-per-line hex+ASCII dump, matching
// ethersrv.c's dumpframe() layout, for debug logging.
func DumpHex(buf []byte) string {
	const width = 16
	var out []byte
	lines := (len(buf) + width - 1) / width
	for i := 0; i < lines; i++ {
		for b := 0; b < width; b++ {
			if b == width/2 {
				out = append(out, ' ')
			}
			off := i*width + b
			if off < len(buf) {
				out = append(out, []byte(hexByte(buf[off]))...)
				out = append(out, ' ')
			} else {
				out = append(out, ' ', ' ', ' ')
			}
		}
		out = append(out, '|', ' ')
		for b := 0; b < width; b++ {
			if b == width/2 {
				out = append(out, ' ')
			}
			off := i*width + b
			if off >= len(buf) {
				out = append(out, ' ')
				continue
			}
			c := buf[off]
			if c >= ' ' && c <= '~' {
				out = append(out, c)
			} else {
				out = append(out, '.')
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}

const hexDigits = "0123456789ABCDEF"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}
