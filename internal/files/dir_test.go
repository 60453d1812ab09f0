package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDir_CreatesDefaultFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files")

	d, err := OpenDir(root, DefaultFileName)
	require.NoError(t, err)

	b, err := d.Read(DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderContent, string(b))

	size, err := d.Size(DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, int64(len(PlaceholderContent)), size)
}

func TestOpenDir_KeepsExistingDefaultFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultFileName), []byte("real logo"), 0o644))

	d, err := OpenDir(root, DefaultFileName)
	require.NoError(t, err)

	b, err := d.Read(DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, "real logo", string(b))
}

func TestDir_WriteRead(t *testing.T) {
	d, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)

	n, err := d.Write("report.txt", strings.NewReader("quarterly"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.True(t, d.Exists("report.txt"))

	b, err := d.Read("report.txt")
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(b))

	_, err = d.Read("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.Size("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDir_RejectsTraversal(t *testing.T) {
	d, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.txt", `a\b.txt`} {
		_, err := d.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
