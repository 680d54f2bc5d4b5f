//go:build darwin || freebsd || netbsd || openbsd

package dosfs

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// BSD/macOS file-flags bridge, ported from fs.c's __FreeBSD__/__APPLE__
// branch: st_flags bits stand in for the FAT attribute bits that Linux
// reaches via ioctl. Read-only maps to UF_IMMUTABLE, hidden to UF_HIDDEN
// and archive to UF_APPEND. The system bit (0x04) is not mapped:
// getFATAttr never reports it and setFATAttr ignores it.
type bsdFATAttrDriver struct{}

func newFATAttrDriver() fatAttrDriver {
	return bsdFATAttrDriver{}
}

func (bsdFATAttrDriver) getFATAttr(path string) (byte, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	var attr byte
	if st.Flags&unix.UF_IMMUTABLE != 0 {
		attr |= AttrReadOnly
	}
	if st.Flags&unix.UF_HIDDEN != 0 {
		attr |= AttrHidden
	}
	if st.Flags&unix.UF_APPEND != 0 {
		attr |= AttrArchive
	}
	return attr, nil
}

func (bsdFATAttrDriver) setFATAttr(path string, attr byte) error {
	var flags uint32
	if attr&AttrReadOnly != 0 {
		flags |= unix.UF_IMMUTABLE
	}
	if attr&AttrHidden != 0 {
		flags |= unix.UF_HIDDEN
	}
	if attr&AttrArchive != 0 {
		flags |= unix.UF_APPEND
	}
	if err := unix.Chflags(path, int(flags)); err != nil {
		return errors.Wrapf(err, "chflags %s", path)
	}
	return nil
}

func (bsdFATAttrDriver) isFAT(root string) bool {
	var buf unix.Statfs_t
	if err := unix.Statfs(root, &buf); err != nil {
		return false
	}
	name := fsTypeName(buf)
	return name == "msdos" || name == "msdosfs"
}

// DiskSpace returns total and free bytes for the filesystem containing
// path (fs.c's diskinfo(), BSD statfs() variant).
func DiskSpace(path string) (total, free uint64, err error) {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		return 0, 0, errors.Wrapf(err, "statfs %s", path)
	}
	total = uint64(buf.Blocks) * uint64(buf.Bsize)
	free = uint64(buf.Bfree) * uint64(buf.Bsize)
	return total, free, nil
}
