//go:build linux

package dosfs

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Linux msdos/vfat FAT attribute ioctls, ported from fs.c's use of
// <linux/msdos_fs.h>'s FAT_IOCTL_GET_ATTRIBUTES / FAT_IOCTL_SET_ATTRIBUTES.
// These two numbers are stable ABI but golang.org/x/sys/unix does not
// export them (they're FS-specific, not general VFS ioctls), so they're
// spelled out here: _IOR('r', 0x10, __u32) and _IOW('r', 0x11, __u32)
// in the generic ioctl encoding used by x86 and ARM.
const (
	fatIoctlGetAttributes = 0x80047210
	fatIoctlSetAttributes = 0x40047211
)

const msdosSuperMagic = 0x4d44 // statfs(2) f_type for FAT filesystems

type linuxFATAttrDriver struct{}

func newFATAttrDriver() fatAttrDriver {
	return linuxFATAttrDriver{}
}

func (linuxFATAttrDriver) getFATAttr(path string) (byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s for attribute ioctl", path)
	}
	defer unix.Close(fd)

	var attr uint32
	if err := ioctl(uintptr(fd), fatIoctlGetAttributes, uintptr(unsafe.Pointer(&attr))); err != nil {
		return 0, errors.Wrapf(err, "FAT_IOCTL_GET_ATTRIBUTES on %s", path)
	}
	return byte(attr), nil
}

func (linuxFATAttrDriver) setFATAttr(path string, attr byte) error {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "open %s for attribute ioctl", path)
	}
	defer unix.Close(fd)

	a := uint32(attr)
	if err := ioctl(uintptr(fd), fatIoctlSetAttributes, uintptr(unsafe.Pointer(&a))); err != nil {
		return errors.Wrapf(err, "FAT_IOCTL_SET_ATTRIBUTES on %s", path)
	}
	return nil
}

func (linuxFATAttrDriver) isFAT(root string) bool {
	var buf unix.Statfs_t
	if err := unix.Statfs(root, &buf); err != nil {
		return false
	}
	return int64(buf.Type) == msdosSuperMagic
}

func ioctl(fd, op, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

// DiskSpace returns total and free bytes for the filesystem containing
// path, porting fs.c's diskinfo() (statvfs) via statfs(2).
func DiskSpace(path string) (total, free uint64, err error) {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		return 0, 0, errors.Wrapf(err, "statfs %s", path)
	}
	total = uint64(buf.Blocks) * uint64(buf.Bsize)
	free = uint64(buf.Bfree) * uint64(buf.Bsize)
	return total, free, nil
}
