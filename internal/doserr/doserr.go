// Package doserr implements the dispatcher's error taxonomy: the
// DOS-style AX codes (Code), an error wrapper carrying one (DOSError),
// and the Drop sentinel for a frame that gets no reply at all.
package doserr

import "github.com/megapearl/etherdfs/internal/protocol"

// Code is a DOS-style AX result code.
type Code uint16

const (
	Ok             Code = protocol.AXOk
	FileNotFound   Code = protocol.AXFileNotFound
	PathNotFound   Code = protocol.AXPathNotFound
	AccessDenied   Code = protocol.AXAccessDenied
	NoMoreFiles    Code = protocol.AXNoMoreFiles
	WriteFault     Code = protocol.AXWriteFault
)

// DOSError wraps a Code so it can travel as a Go error when convenient
// (e.g. returned from a helper that a caller wants to classify with
// errors.As), without losing its AX value.
type DOSError struct {
	Code Code
}

func (e *DOSError) Error() string {
	switch e.Code {
	case FileNotFound:
		return "file not found"
	case PathNotFound:
		return "path not found"
	case AccessDenied:
		return "access denied"
	case NoMoreFiles:
		return "no more files"
	case WriteFault:
		return "write fault"
	default:
		return "dos error"
	}
}

// New wraps code as an error.
func New(code Code) error {
	return &DOSError{Code: code}
}

// Drop is a sentinel error: the dispatcher recognized nothing to reply
// to (unknown opcode or unconfigured drive) and the frame
// must be silently ignored, not replied to.
var Drop = &DOSError{Code: 0xFFFF}

// IsDrop reports whether err is the Drop sentinel.
func IsDrop(err error) bool {
	return err == Drop
}
