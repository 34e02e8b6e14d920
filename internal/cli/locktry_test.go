package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func lockTry(t *testing.T, path string) error {
	t.Helper()
	cmd := NewLockTryCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	return cmd.Execute()
}

func TestLockTry_HeldLockWouldBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock_test.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	// flock ownership follows the open file description, so a lock held
	// on one descriptor blocks a non-blocking attempt through another.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_EX))
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	assert.NoError(t, lockTry(t, path))
}

func TestLockTry_FreeLockIsAFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock_test.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	err := lockTry(t, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "unexpectedly acquired")
}

func TestLockTry_MissingFile(t *testing.T) {
	err := lockTry(t, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
