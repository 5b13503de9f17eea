package rewrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphaven/claude-recontext/internal/testjsonl"
)

func TestRewriteTextBlob(t *testing.T) {
	dir := t.TempDir()
	content := "# Notes\n\nRepo lives at C:\\Users\\Old\\project.\n" +
		"Scripts: C:/Users/Old/project/scripts\n"
	path := testjsonl.WriteFile(t, dir, "memory/MEMORY.md", content)

	res, err := RewriteTextBlob(path, oldWinPath, newWinPath)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []byte(content), res.Prior)
	assert.Equal(t,
		"# Notes\n\nRepo lives at C:\\Users\\New\\project.\n"+
			"Scripts: C:/Users/New/project/scripts\n",
		testjsonl.ReadFile(t, path))

	require.NoError(t, RestoreContent(path, res.Prior))
	assert.Equal(t, content, testjsonl.ReadFile(t, path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRewriteTextBlob_NoMatch(t *testing.T) {
	path := testjsonl.WriteFile(t, t.TempDir(), "notes.md", "nothing here\n")

	res, err := RewriteTextBlob(path, "/home/u/old", "/home/u/new")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Prior)

	_, err = RewriteTextBlob(filepath.Join(t.TempDir(), "gone.md"), "/a", "/b")
	assert.Error(t, err)
}

func TestScanTextForMatch(t *testing.T) {
	path := testjsonl.WriteFile(t, t.TempDir(), "notes.md",
		"see c:\\users\\old\\project\\src\n")

	found, err := ScanTextForMatch(path, oldWinPath)
	require.NoError(t, err)
	assert.True(t, found, "case-insensitive match")

	found, err = ScanTextForMatch(path, `C:\Users\Someone`)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteFileAtomic_KeepsPerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))
	assert.Equal(t, "two", testjsonl.ReadFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}
