package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "nested", "f.bin")

	require.NoError(t, WriteFileAtomic(Default, name, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(Default, name, []byte("two"), 0o644))

	got, err := ReadFile(Default, name)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	_, err = os.Stat(name + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("page", Fault{FailAfterBytes: 2})

	name := filepath.Join(dir, "page-1")
	err := WriteFileAtomic(ffs, name, []byte("hello"), 0o644)
	assert.ErrorIs(t, err, ErrInjected)

	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err), "failed atomic write must not leave the target")

	require.NoError(t, WriteFileAtomic(ffs, filepath.Join(dir, "other"), []byte("hello"), 0o644))
}

func TestFaultyFS_SyncReadRename(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	name := filepath.Join(dir, "CURRENT")

	ffs.AddRule("CURRENT", Fault{FailAfterBytes: -1, FailOnSync: true})
	assert.ErrorIs(t, WriteFileAtomic(ffs, name, []byte("x"), 0o644), ErrInjected)

	ffs.Reset()
	ffs.AddRule("CURRENT", Fault{FailAfterBytes: -1, FailOnRename: true})
	assert.ErrorIs(t, WriteFileAtomic(ffs, name, []byte("x"), 0o644), ErrInjected)

	ffs.Reset()
	require.NoError(t, WriteFileAtomic(ffs, name, []byte("x"), 0o644))

	ffs.AddRule("CURRENT", Fault{FailAfterBytes: -1, FailOnRead: true})
	_, err := ReadFile(ffs, name)
	assert.ErrorIs(t, err, ErrInjected)
}
