package probe_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beastmode/nfscheck/internal/config"
	"github.com/beastmode/nfscheck/internal/probe"
)

// fakeContender substitutes the out-of-process lock attempt in tests.
type fakeContender struct {
	status probe.LockStatus
	err    error
	paths  []string
}

func (c *fakeContender) TryExclusive(_ context.Context, path string) (probe.LockStatus, error) {
	c.paths = append(c.paths, path)
	return c.status, c.err
}

func TestBasicLocking_WouldBlockPasses(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	contender := &fakeContender{status: probe.LockWouldBlock}
	env.Contender = contender

	p, _ := probe.Lookup(probe.IDLocking)
	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "blocked an independent process")
	require.Len(t, contender.paths, 1)
}

func TestBasicLocking_AcquiredFails(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	env.Contender = &fakeContender{status: probe.LockAcquired}

	p, _ := probe.Lookup(probe.IDLocking)
	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquired the lock while it was held")
}

func TestBasicLocking_ContenderErrorFails(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	env.Contender = &fakeContender{err: fmt.Errorf("fork bomb")}

	p, _ := probe.Lookup(probe.IDLocking)
	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contender attempt failed")
}

func TestBasicLocking_NoContenderConfigured(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)

	p, _ := probe.Lookup(probe.IDLocking)
	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lock contender")
}

func TestTryLockExclusive_UnlockedFile(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	path := filepath.Join(env.WorkDir, "free.txt")
	require.NoError(t, os.WriteFile(path, []byte("lock me"), 0644))

	status, err := probe.TryLockExclusive(path)
	require.NoError(t, err)
	assert.Equal(t, probe.LockAcquired, status)
}

func TestTryLockExclusive_MissingFile(t *testing.T) {
	_, err := probe.TryLockExclusive(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
