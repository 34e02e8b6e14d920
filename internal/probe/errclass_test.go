package probe_test

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/beastmode/nfscheck/internal/probe"
)

func TestClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want probe.ErrorClass
	}{
		{"nil", nil, probe.ClassNone},
		{"eacces", unix.EACCES, probe.ClassPermission},
		{"erofs", unix.EROFS, probe.ClassPermission},
		{"eperm", unix.EPERM, probe.ClassPermission},
		{"enoent", unix.ENOENT, probe.ClassNotFound},
		{"ewouldblock", unix.EWOULDBLOCK, probe.ClassWouldBlock},
		{"eagain", unix.EAGAIN, probe.ClassWouldBlock},
		{"eio", unix.EIO, probe.ClassOther},
		{"plain error", fmt.Errorf("boom"), probe.ClassOther},
		{
			"wrapped path error",
			&fs.PathError{Op: "open", Path: "/mnt/x", Err: unix.EROFS},
			probe.ClassPermission,
		},
		{
			"double wrapped",
			fmt.Errorf("write failed: %w", &fs.PathError{Op: "open", Path: "/mnt/x", Err: unix.ENOENT}),
			probe.ClassNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, probe.Class(tt.err))
		})
	}
}

func TestClass_RealSyscallErrors(t *testing.T) {
	// Errors produced by the os package must classify without any manual
	// unwrapping by the caller.
	err := os.Remove(filepath.Join(t.TempDir(), "never_created"))
	assert.Equal(t, probe.ClassNotFound, probe.Class(err))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "permission", probe.ClassPermission.String())
	assert.Equal(t, "not-found", probe.ClassNotFound.String())
	assert.Equal(t, "would-block", probe.ClassWouldBlock.String())
}
