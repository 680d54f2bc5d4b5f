//go:build darwin || freebsd || netbsd || openbsd

package dosfs

import "golang.org/x/sys/unix"

// fsTypeName extracts the null-terminated fstypename field BSD's statfs(2)
// reports: "msdos" on a macOS FAT mount, "msdosfs" on FreeBSD. isFAT
// accepts either name.
func fsTypeName(buf unix.Statfs_t) string {
	n := 0
	for n < len(buf.Fstypename) && buf.Fstypename[n] != 0 {
		n++
	}
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(buf.Fstypename[i])
	}
	return string(b)
}
