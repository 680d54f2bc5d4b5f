package dosfs

import (
	"os"
	"path/filepath"
	"sort"
)

// ListDir enumerates dir once, building the cached {FileProps} sequence
// a handledb.Entry stores (spec.md §3 "Directory listing"). Entries are
// ordered by name (os.ReadDir sorts by filename), not by raw host
// enumeration order; the order is fixed for the lifetime of the cached
// listing.
func ListDir(dir string, fatFlag bool) ([]FileProps, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	list := make([]FileProps, 0, len(entries))
	for _, e := range entries {
		_, fp, err := GetAttr(filepath.Join(dir, e.Name()), fatFlag)
		if err != nil {
			continue
		}
		list = append(list, fp)
	}
	return list, nil
}

// FindMatch implements the FINDFIRST/FINDNEXT scan over an (already
// generated) directory listing starting strictly after cursor,
// returning the first candidate whose FCB name matches fcbMask and
// whose attribute bits pass the filter in spec.md §4.4. The returned
// cursor is the 1-based index of the match within list.
func FindMatch(list []FileProps, fcbMask [11]byte, attr byte, cursor int, isRoot bool) (FileProps, int, bool) {
	for i := cursor; i < len(list); i++ {
		cand := list[i]
		if isRoot && cand.FCBName[0] == '.' {
			continue
		}
		if !MatchFCB(fcbMask, cand.FCBName) {
			continue
		}
		if attr == AttrVolume {
			if cand.Attr&AttrVolume == 0 {
				continue
			}
		} else if (attr | (cand.Attr & 0x16)) != attr {
			continue
		}
		return cand, i + 1, true
	}
	return FileProps{}, cursor, false
}
