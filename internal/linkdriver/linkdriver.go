// Package linkdriver defines the link-driver contract from spec.md §6
// and provides a fake, in-memory implementation for tests. The real
// raw-socket implementation lives in linkdriver_linux.go.
package linkdriver

import "errors"

// ErrTimeout is returned by Recv when a poll cycle elapsed with no
// frame pending — the Go analogue of the original's EAGAIN/EINTR,
// letting the main loop check its termination flag promptly (spec.md
// §5).
var ErrTimeout = errors.New("linkdriver: recv timeout")

// Driver is the external collaborator spec.md §1/§6 carves out: raw
// socket acquisition, interface binding, promiscuous mode, and MAC
// discovery. The core only depends on this interface.
type Driver interface {
	// LocalMAC returns the bound interface's hardware address.
	LocalMAC() [6]byte
	// Recv blocks for up to one poll interval and returns the next
	// frame, or ErrTimeout if none arrived.
	Recv(buf []byte) (n int, err error)
	// Send transmits a complete frame.
	Send(buf []byte) error
	// Close releases the underlying socket and unblocks any in-flight
	// Recv.
	Close() error
}

// Open binds a Driver to the named interface: a raw AF_PACKET/SOCK_RAW
// socket (linkdriver_linux.go). Linux is the only platform with an
// implementation; on other platforms this package does not build.
func Open(iface string) (Driver, error) {
	return openPlatform(iface)
}
