package dosfs

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnresolved is returned by ResolveShortToLong when a path component
// has no matching host directory entry.
var ErrUnresolved = errors.New("path component not found")

// ResolveShortToLong is the only place DOS case-insensitivity is bridged
// onto the case-sensitive host filesystem (spec.md §4.5). input must
// already be slash-normalized, lower-cased after the drive root, and
// begin with root. It returns the host-side path with each component
// replaced by the real (case-preserved) directory entry whose FCB form
// matches, and an error (wrapping ErrUnresolved) if any component fails
// to resolve — the returned path in that case still has the literal
// requested remainder appended, per spec.md §4.5 step 3.
func ResolveShortToLong(input, root string) (string, error) {
	if !strings.HasPrefix(input, root) {
		return input, errors.Errorf("path %q does not start with drive root %q", input, root)
	}
	rest := input[len(root):]
	if rest == "" {
		return root, nil
	}
	if !strings.HasPrefix(rest, "/") {
		return input, errors.Errorf("malformed path %q: missing separator after root", input)
	}
	rest = rest[1:]

	out := root
	if rest == "" {
		return out, nil
	}

	components := strings.Split(rest, "/")
	for idx, comp := range components {
		isLast := idx == len(components)-1
		wantFCB := FilenameToFCB(comp)

		// a non-terminal component must resolve to a directory entry;
		// a terminal component may be anything (spec.md §4.5 step 4).
		name, found := findEntry(out, wantFCB, !isLast)
		if !found {
			return out + "/" + strings.Join(components[idx:], "/"), ErrUnresolved
		}
		out = out + "/" + name
	}
	return out, nil
}

// findEntry scans dir for the first entry whose FCB form equals wantFCB.
// If dirOnly, non-directory matches are skipped and the scan continues
// (spec.md §4.5 step 4: "If a non-terminal component resolves to a
// non-directory, skip it").
func findEntry(dir string, wantFCB [11]byte, dirOnly bool) (name string, found bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if FilenameToFCB(e.Name()) != wantFCB {
			continue
		}
		if dirOnly && !e.IsDir() {
			continue
		}
		return e.Name(), true
	}
	return "", false
}

// NormalizeDOSPath strips an optional "X:" drive prefix, converts
// backslashes to slashes, lower-cases the result and drops any leading
// slashes (callers join it to the drive root with their own "/"), per
// spec.md §4.7's "Path normalization for all path-bearing opcodes".
func NormalizeDOSPath(raw string) string {
	if len(raw) >= 2 && raw[1] == ':' {
		raw = raw[2:]
	}
	raw = strings.ReplaceAll(raw, "\\", "/")
	return strings.TrimLeft(strings.ToLower(raw), "/")
}

// IsRoot reports whether dir (a host path) names the root of the drive
// rooted at root: true iff, after stripping the root prefix and any
// leading slashes, no further slash remains. Ports ethersrv.c's isroot().
func IsRoot(root, dir string) bool {
	if !strings.HasPrefix(dir, root) {
		return false
	}
	rest := strings.TrimLeft(dir[len(root):], "/")
	return !strings.Contains(rest, "/")
}
