//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package dosfs

import "github.com/pkg/errors"

// fallbackFATAttrDriver is used on platforms with no known FAT-ioctl or
// file-flags facility; every drive behaves as non-FAT (spec.md §4.6's
// "fake archive" path is always taken by GetAttr before this is reached
// in practice, but isFAT must still answer something sane at startup).
type fallbackFATAttrDriver struct{}

func newFATAttrDriver() fatAttrDriver {
	return fallbackFATAttrDriver{}
}

func (fallbackFATAttrDriver) getFATAttr(path string) (byte, error) {
	return 0, errors.New("FAT attributes unsupported on this platform")
}

func (fallbackFATAttrDriver) setFATAttr(path string, attr byte) error {
	return errors.New("FAT attributes unsupported on this platform")
}

func (fallbackFATAttrDriver) isFAT(root string) bool {
	return false
}

// DiskSpace is unsupported on this platform; ethersrv targets
// Linux/BSD hosts only (spec.md §1's out-of-scope link-driver/OS
// collaborators).
func DiskSpace(path string) (total, free uint64, err error) {
	return 0, 0, errors.New("disk space query unsupported on this platform")
}
