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

func TestConcurrentWriters_AllSucceed(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)
	p, _ := probe.Lookup(probe.IDConcurrentWriters)

	detail, err := p.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Contains(t, detail, "8/8 writers succeeded")
}

func TestConcurrentWriters_OneFailureFlipsAggregate(t *testing.T) {
	env := newEnv(t, config.ModeReadWrite)

	// Squatting a directory on one writer's path makes that single
	// worker's create fail while the rest of the pool runs to completion.
	require.NoError(t, os.Mkdir(filepath.Join(env.WorkDir, "writer_3.txt"), 0755))

	p, _ := probe.Lookup(probe.IDConcurrentWriters)
	_, err := p.Run(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "7/8 writers succeeded")

	// Every other worker still wrote and cleaned up its own file.
	for i := 0; i < 8; i++ {
		if i == 3 {
			continue
		}
		_, statErr := os.Stat(filepath.Join(env.WorkDir, fmt.Sprintf("writer_%d.txt", i)))
		assert.True(t, os.IsNotExist(statErr), "writer %d file should be cleaned up", i)
	}
}
