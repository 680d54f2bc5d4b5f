package dosfs

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// ReadFile reads up to length bytes from hostPath starting at offset,
// porting fs.c's readfile.
func ReadFile(hostPath string, offset uint32, length uint16) ([]byte, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for read", hostPath)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read %s", hostPath)
	}
	return buf[:n], nil
}

// WriteFile writes data at offset into hostPath, or truncates to offset
// when data is empty, porting fs.c's writefile. Returns the number of
// bytes written.
func WriteFile(hostPath string, offset uint32, data []byte) (int, error) {
	if len(data) == 0 {
		if err := os.Truncate(hostPath, int64(offset)); err != nil {
			return 0, errors.Wrapf(err, "truncate %s", hostPath)
		}
		return 0, nil
	}
	f, err := os.OpenFile(hostPath, os.O_WRONLY, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s for write", hostPath)
	}
	defer f.Close()

	n, err := f.WriteAt(data, int64(offset))
	if err != nil {
		return n, errors.Wrapf(err, "write %s", hostPath)
	}
	return n, nil
}

// CreateFile creates (or truncates) dir/name, applies attr on FAT
// drives, and returns the resulting FileProps, porting fs.c's
// createfile.
func CreateFile(dir, name string, attr byte, isFATDrive bool) (string, FileProps, error) {
	full := dir + "/" + name
	f, err := os.Create(full)
	if err != nil {
		return "", FileProps{}, errors.Wrapf(err, "create %s", full)
	}
	f.Close()

	if isFATDrive {
		_ = SetAttr(full, attr, isFATDrive)
	}
	_, fp, err := GetAttr(full, isFATDrive)
	if err != nil {
		return full, fp, err
	}
	return full, fp, nil
}

// Rename renames src to dst, porting fs.c's renfile.
func Rename(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "rename %s -> %s", src, dst)
	}
	return nil
}

// MkDir creates a directory with mode 0, exactly preserving the
// original's `mkdir(d, 0)` (see DESIGN.md's open-question entry: the
// resulting directory is inaccessible to the server process afterwards,
// and that observable behavior is intentionally preserved, not fixed).
func MkDir(hostPath string) error {
	return os.Mkdir(hostPath, 0)
}

// RmDir removes an empty directory, porting fs.c's remdir.
func RmDir(hostPath string) error {
	return os.Remove(hostPath)
}

// ChDir verifies hostPath is a directory the process can enter, porting
// fs.c's changedir (called only to validate existence/traversability
// before other operations — the server itself has no "current
// directory" concept across requests).
func ChDir(hostPath string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", hostPath)
	}
	return nil
}

// DeleteMatching removes every entry in the directory containing
// pattern whose FCB name matches pattern's FCB mask (which may contain
// '?' wildcards), or the single named file if pattern contains no
// wildcard. Ports fs.c's delfiles.
func DeleteMatching(dir, maskOrName string) error {
	mask := FilenameToFCB(maskOrName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if MatchFCB(mask, FilenameToFCB(e.Name())) {
			_ = os.Remove(dir + "/" + e.Name())
		}
	}
	return nil
}

// FileSize returns the size of an open file (fs.c's getfopsize), or
// -1 if hostPath cannot be stat'd.
func FileSize(hostPath string) (int64, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return -1, err
	}
	return info.Size(), nil
}
