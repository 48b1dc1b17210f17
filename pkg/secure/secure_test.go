//go:build !windows
// +build !windows

package secure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdirAll(t *testing.T) {
	cases := []struct {
		name       string
		parentMode os.FileMode
		perm       os.FileMode
		wantErr    bool
	}{
		{"same mode", 0o755, 0o755, false},
		{"group writable parent", 0o775, 0o755, false},
		{"sticky world writable parent", os.ModeSticky | 0o777, 0o755, false},
		{"private parent", 0o700, 0o755, true},
		{"private parent private child", 0o700, 0o700, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			parent := filepath.Join(t.TempDir(), "parent")
			require.NoError(t, os.Mkdir(parent, 0o700))
			require.NoError(t, os.Chmod(parent, c.parentMode))

			target := filepath.Join(parent, "a", "b")
			err := MkdirAll(target, c.perm)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			info, err := os.Stat(target)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	require.Error(t, MkdirAll(filepath.Join(blocker, "child"), 0o755))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "ConditionalItems.plist")

	require.NoError(t, WriteFileAtomic(name, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(name, []byte("second"), 0o644))

	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	err = WriteFileAtomic(filepath.Join(dir, "missing", "file"), []byte("x"), 0o644)
	require.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(name, nil, 0o600))

	require.NoError(t, RemoveIfExists(name))
	require.NoError(t, RemoveIfExists(name))
	_, err := os.Stat(name)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
