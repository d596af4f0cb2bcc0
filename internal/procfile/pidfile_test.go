package procfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nginxcore.pid")
	require.NoError(t, Write(path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(contents))
}

func TestRemoveIgnoresMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")
	assert.NoError(t, Remove(path))
}

func TestWriteEmptyPathIsNoOp(t *testing.T) {
	assert.NoError(t, Write(""))
	assert.NoError(t, Remove(""))
}

func TestReadInvalidContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
