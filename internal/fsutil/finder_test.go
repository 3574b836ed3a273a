package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesBySuffix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lab", "sub"), 0o755))
	for _, f := range []string{"a.p4", "lab/b.p4", "lab/sub/c.db", "lab/readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644))
	}

	files, err := FindFilesBySuffix(root, ".p4")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.p4"),
		filepath.Join(root, "lab", "b.p4"),
	}, files)
}

func TestFindFilesBySuffixMissingRoot(t *testing.T) {
	files, err := FindFilesBySuffix(filepath.Join(t.TempDir(), "nope"), ".p4")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFindDirsByName(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"pcap", "lab/pcap", "lab/log"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	dirs, err := FindDirsByName(root, "pcap")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "pcap"),
		filepath.Join(root, "lab", "pcap"),
	}, dirs)
}
