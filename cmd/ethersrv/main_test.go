package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDriveTableAssignsStartingAtDriveC(t *testing.T) {
	root1, root2 := t.TempDir(), t.TempDir()

	table, err := buildDriveTable([]string{root1, root2})
	require.NoError(t, err)

	abs1, err := resolveRoot(root1)
	require.NoError(t, err)
	abs2, err := resolveRoot(root2)
	require.NoError(t, err)

	require.NotNil(t, table[2])
	require.NotNil(t, table[3])
	assert.Equal(t, abs1, table[2].Root)
	assert.Equal(t, abs2, table[3].Root)
	assert.Nil(t, table[4])
}

func TestBuildDriveTableRejectsMissingPath(t *testing.T) {
	_, err := buildDriveTable([]string{filepath.Join(t.TempDir(), "nosuch")})
	assert.Error(t, err)
}

func TestResolveRootRejectsNonDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := resolveRoot(file)
	assert.Error(t, err)
}

func TestAbsPathLeavesAbsoluteUnchanged(t *testing.T) {
	got, err := absPath("/already/absolute")
	require.NoError(t, err)
	assert.Equal(t, "/already/absolute", got)
}
