package dosfs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/megapearl/etherdfs/internal/protocol"
)

// FileProps is protocol.FileProps, used throughout dosfs.
type FileProps = protocol.FileProps

const (
	AttrReadOnly  = protocol.AttrReadOnly
	AttrHidden    = protocol.AttrHidden
	AttrSystem    = protocol.AttrSystem
	AttrVolume    = protocol.AttrVolume
	AttrDirectory = protocol.AttrDirectory
	AttrArchive   = protocol.AttrArchive
)

// ErrNotFound is returned by GetAttr when the host path does not exist,
// mirroring fs.c's getitemattr returning 0xFF.
var ErrNotFound = errors.New("not found")

// fatAttrDriver is implemented per-OS (attr_linux.go / attr_bsd.go /
// attr_fallback.go) to bridge DOS attribute bits onto the host's FAT
// attribute facility.
type fatAttrDriver interface {
	getFATAttr(path string) (byte, error)
	setFATAttr(path string, attr byte) error
	isFAT(root string) bool
}

var driver fatAttrDriver = newFATAttrDriver()

// IsFAT reports whether root is mounted on a FAT-family filesystem
// (fs.c's isfat()).
func IsFAT(root string) bool {
	return driver.isFAT(root)
}

// GetAttr stats hostPath and returns its DOS attribute byte plus a
// populated FileProps, porting fs.c's getitemattr. isFATDrive selects
// between real FAT-ioctl attributes and the faked "always archive"
// behavior for non-FAT mounts (spec.md §4.6).
func GetAttr(hostPath string, isFATDrive bool) (byte, FileProps, error) {
	var fp FileProps
	info, err := os.Stat(hostPath)
	if err != nil {
		return 0xFF, fp, ErrNotFound
	}
	fp.DOSTime = PackDOSTime(info.ModTime())
	fp.FCBName = FilenameToFCB(filepath.Base(hostPath))

	if info.IsDir() {
		fp.Attr = AttrDirectory
		return fp.Attr, fp, nil
	}

	fp.Size = uint32(clampSize(info.Size()))

	if !isFATDrive {
		fp.Attr = AttrArchive
		return fp.Attr, fp, nil
	}

	attr, err := driver.getFATAttr(hostPath)
	if err != nil {
		return 0xFF, fp, err
	}
	fp.Attr = attr
	return attr, fp, nil
}

// SetAttr is the inverse of GetAttr's FAT-ioctl path; a no-op on
// non-FAT drives (spec.md §4.6).
func SetAttr(hostPath string, attr byte, isFATDrive bool) error {
	if !isFATDrive {
		return nil
	}
	return driver.setFATAttr(hostPath, attr)
}

func clampSize(n int64) int64 {
	const max32 = 1<<31 - 1
	if n > max32 {
		return max32
	}
	return n
}
