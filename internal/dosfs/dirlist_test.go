package dosfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megapearl/etherdfs/internal/dosfs"
)

func TestListDirAndFindMatchSequence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "world.bin"), make([]byte, 10), 0644))

	list, err := dosfs.ListDir(root, false)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var mask [11]byte
	for i := range mask {
		mask[i] = '?'
	}

	first, cursor, ok := dosfs.FindMatch(list, mask, 0, 0, false)
	require.True(t, ok)
	assert.Equal(t, "HELLO   TXT", string(first.FCBName[:]))
	assert.Equal(t, 1, cursor)

	second, cursor2, ok := dosfs.FindMatch(list, mask, 0, cursor, false)
	require.True(t, ok)
	assert.Equal(t, "WORLD   BIN", string(second.FCBName[:]))
	assert.Equal(t, uint32(10), second.Size)
	assert.Equal(t, 2, cursor2)

	_, _, ok = dosfs.FindMatch(list, mask, 0, cursor2, false)
	assert.False(t, ok, "listing should be exhausted after both entries")
}

func TestFindMatchSkipsDotEntriesAtRoot(t *testing.T) {
	list := []dosfs.FileProps{
		{FCBName: dosfs.FilenameToFCB(".")},
		{FCBName: dosfs.FilenameToFCB("..")},
		{FCBName: dosfs.FilenameToFCB("real.txt")},
	}
	var wildcard [11]byte
	for i := range wildcard {
		wildcard[i] = '?'
	}

	cand, _, ok := dosfs.FindMatch(list, wildcard, 0, 0, true)
	require.True(t, ok)
	assert.Equal(t, "REAL    TXT", string(cand.FCBName[:]))
}

func TestFindMatchVolumeLabelFilter(t *testing.T) {
	list := []dosfs.FileProps{
		{FCBName: dosfs.FilenameToFCB("normal.txt"), Attr: 0},
		{FCBName: dosfs.FilenameToFCB("volid"), Attr: dosfs.AttrVolume},
	}
	var wildcard [11]byte
	for i := range wildcard {
		wildcard[i] = '?'
	}

	cand, _, ok := dosfs.FindMatch(list, wildcard, dosfs.AttrVolume, 0, false)
	require.True(t, ok)
	assert.Equal(t, byte(dosfs.AttrVolume), cand.Attr)
}
