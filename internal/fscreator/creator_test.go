package fscreator

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftwire/swiftwire/internal/logging"
)

func newTestCreator(t *testing.T) (*Creator, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, logging.NewWithWriter("fscreator-test", "error", io.Discard)), dir
}

func TestCreateSimpleFile(t *testing.T) {
	c, dir := newTestCreator(t)

	f, err := c.Create("a.txt")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCreateNestedDirectories(t *testing.T) {
	c, dir := newTestCreator(t)

	f, err := c.Create("nested/deep/file.bin")
	require.NoError(t, err)
	f.Close()

	_, err = os.Stat(filepath.Join(dir, "nested", "deep", "file.bin"))
	assert.NoError(t, err)
}

func TestCreateExistingFileKeepsContents(t *testing.T) {
	c, dir := newTestCreator(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("0123456789"), 0644))

	f, err := c.Create("f")
	require.NoError(t, err)
	defer f.Close()

	// Positional write into the existing file must not clobber the rest.
	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("xx"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "0123xx6789", string(data))
}

func TestTruncate(t *testing.T) {
	c, dir := newTestCreator(t)

	f, err := c.Create("t.bin")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, c.Truncate(f, 1024))

	info, err := os.Stat(filepath.Join(dir, "t.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())
}

func TestCreateRejectsEscapingIDs(t *testing.T) {
	c, _ := newTestCreator(t)

	for _, id := range []string{"", "/etc/passwd", "..", "../outside", "a/../../b"} {
		_, err := c.Create(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestCreateAllowsDotSegmentsInside(t *testing.T) {
	c, dir := newTestCreator(t)

	f, err := c.Create("a/./b/../c.txt")
	require.NoError(t, err)
	f.Close()

	_, err = os.Stat(filepath.Join(dir, "a", "c.txt"))
	assert.NoError(t, err)
}
