package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	s, err := New(path, LevelInfo, "gen-1")
	require.NoError(t, err)
	defer s.Close()

	s.For("test").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "gen-1")
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	s, err := New(path, LevelInfo, "gen-1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Reopen())
	require.NoError(t, s.Reopen())

	s.For("test").Info("after reopen")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after reopen")
}

func TestEmptyPathUsesStderr(t *testing.T) {
	s, err := New("", LevelInfo, "gen-1")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "", s.Path())
}
