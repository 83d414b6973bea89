package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSourceReturnsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0644))

	data, err := ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}

func TestReadSourceMissingFileErrors(t *testing.T) {
	_, err := ReadSource(filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)
}

func TestHashIsDeterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Hash([]byte("world")))
}

func TestWithTempFileCleansUpOnSuccess(t *testing.T) {
	var seenPath string
	err := WithTempFile("candidate-*.py", []byte("pass\n"), func(path string) error {
		seenPath = path
		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "pass\n", string(data))
		return nil
	})
	require.NoError(t, err)
	_, statErr := os.Stat(seenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWithTempFileCleansUpOnError(t *testing.T) {
	var seenPath string
	err := WithTempFile("candidate-*.py", []byte("pass\n"), func(path string) error {
		seenPath = path
		return assert.AnError
	})
	assert.Error(t, err)
	_, statErr := os.Stat(seenPath)
	assert.True(t, os.IsNotExist(statErr))
}
