//go:build linux

package linkdriver

import (
	"encoding/binary"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/megapearl/etherdfs/internal/protocol"
)

// pollTimeoutMillis is how long Recv waits in poll(2) before reporting
// ErrTimeout, giving the main loop a cadence to recheck its termination
// latch (spec.md §5's "must return promptly" requirement — Go's net
// primitives have no portable select()+EINTR equivalent over a raw
// AF_PACKET fd, so a short poll timeout stands in for it).
const pollTimeoutMillis = 200

type rawSocket struct {
	fd  int
	mac [6]byte
}

func openPlatform(iface string) (Driver, error) {
	proto := htons(protocol.EtherType)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, errors.Wrap(err, "open raw socket (are you root?)")
	}

	ifi, err := unix.IfNameToIndex(iface)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "resolve interface %q", iface)
	}

	// promiscuous mode
	mreq := unix.PacketMreq{
		Ifindex: int32(ifi),
		Type:    unix.PACKET_MR_PROMISC,
	}
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set promiscuous mode")
	}

	hwaddr, err := interfaceHWAddr(fd, iface)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  int(ifi),
		Pkttype:  unix.PACKET_HOST,
		Halen:    6,
	}
	copy(sa.Addr[:], hwaddr[:])
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind raw socket")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "set non-blocking")
	}

	return &rawSocket{fd: fd, mac: hwaddr}, nil
}

func (r *rawSocket) LocalMAC() [6]byte { return r.mac }

func (r *rawSocket) Recv(buf []byte) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, pollTimeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return 0, ErrTimeout
		}
		return 0, errors.Wrap(err, "poll")
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	nread, _, err := unix.Recvfrom(r.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrTimeout
		}
		return 0, errors.Wrap(err, "recvfrom")
	}
	return nread, nil
}

func (r *rawSocket) Send(buf []byte) error {
	return errors.Wrap(unix.Send(r.fd, buf, 0), "send")
}

func (r *rawSocket) Close() error {
	return unix.Close(r.fd)
}

// ifreqHwaddr mirrors the kernel's struct ifreq as used by
// SIOCGIFHWADDR: an interface name followed by the union's
// struct sockaddr member (2-byte family, 14 bytes of address data, of
// which an Ethernet MAC only occupies the first 6).
type ifreqHwaddr struct {
	name   [unix.IFNAMSIZ]byte
	family uint16
	data   [14]byte
}

func interfaceHWAddr(fd int, iface string) ([6]byte, error) {
	var mac [6]byte
	var ifr ifreqHwaddr
	copy(ifr.name[:], iface)
	if err := ioctl(uintptr(fd), unix.SIOCGIFHWADDR, uintptr(unsafe.Pointer(&ifr))); err != nil {
		return mac, errors.Wrapf(err, "SIOCGIFHWADDR on %q", iface)
	}
	copy(mac[:], ifr.data[:6])
	return mac, nil
}

func ioctl(fd, op, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.LittleEndian.Uint16(b)
}
