package probe_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beastmode/nfscheck/internal/config"
	"github.com/beastmode/nfscheck/internal/probe"
)

func TestReadWriteEnforcement(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	p, _ := probe.Lookup(probe.IDReadWriteEnforcement)

	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "succeeded")

	// The probe cleans up after itself.
	_, statErr := os.Stat(filepath.Join(env.WorkDir, "rw_test.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBasicFileOperations(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	p, _ := probe.Lookup(probe.IDBasicFileOps)

	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "round trip")
}

func TestIdempotentOperations_LastWriteWins(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	p, _ := probe.Lookup(probe.IDIdempotent)

	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "3 repeated writes")
	assert.Contains(t, detail, "duplicate delete rejected")
}

func TestCloseToOpenConsistency(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	p, _ := probe.Lookup(probe.IDCloseToOpen)

	_, err := p.Run(context.Background(), env)
	require.NoError(t, err)
}

func TestCloseToOpenConsistency_CancelledDuringSettle(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	env.Params.SettleInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := probe.Lookup(probe.IDCloseToOpen)
	_, err := p.Run(ctx, env)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadOnlyEnforcement_PermissionClassPasses(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not bind root")
	}

	env := newEnv(t, config.ModeReadOnly)
	require.NoError(t, os.Chmod(env.MountPoint, 0555))
	t.Cleanup(func() { os.Chmod(env.MountPoint, 0755) })

	p, _ := probe.Lookup(probe.IDReadOnlyEnforcement)
	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "blocked as expected")
}

func TestReadOnlyEnforcement_WritableMountFails(t *testing.T) {
	// The write going through is the regression this probe exists for.
	env := newEnv(t, config.ModeReadOnly)
	p, _ := probe.Lookup(probe.IDReadOnlyEnforcement)

	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpectedly succeeded")
}

func TestReadOnlyEnforcement_WrongErrorClassFails(t *testing.T) {
	env := newEnv(t, config.ModeReadOnly)
	env.MountPoint = filepath.Join(env.MountPoint, "does", "not", "exist")
	p, _ := probe.Lookup(probe.IDReadOnlyEnforcement)

	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong error class")
}

func TestReadOnlyReadOperations(t *testing.T) {
	env := newEnv(t, config.ModeReadOnly)
	require.NoError(t, os.WriteFile(filepath.Join(env.MountPoint, "existing.txt"), []byte("x"), 0644))

	p, _ := probe.Lookup(probe.IDReadOnlyReadOps)
	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "1 items")
}
