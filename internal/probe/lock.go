package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockStatus is the outcome of a non-blocking exclusive-lock attempt.
type LockStatus int

const (
	// LockWouldBlock means the lock is held elsewhere, the attempt was
	// refused.
	LockWouldBlock LockStatus = iota

	// LockAcquired means the attempt unexpectedly succeeded.
	LockAcquired
)

// Contender makes a non-blocking exclusive-lock attempt on behalf of the
// locking probe. The production implementation runs in a separate OS
// process: in-process attempts share the caller's lock table and would
// never exercise the server-side lock manager.
type Contender interface {
	TryExclusive(ctx context.Context, path string) (LockStatus, error)
}

// TryLockExclusive performs one non-blocking flock(LOCK_EX) attempt on
// path and reports whether it would block. Shared by the contender child
// process entry point.
func TryLockExclusive(path string) (LockStatus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open lock file: %w", err)
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return LockAcquired, nil
	}
	if Class(err) == ClassWouldBlock {
		return LockWouldBlock, nil
	}
	return 0, fmt.Errorf("lock attempt failed: %w", err)
}

// Contender exit codes, shared with the hidden locktry subcommand.
const (
	ContenderExitWouldBlock = 0
	ContenderExitAcquired   = 1
	ContenderExitError      = 2
)

// ExecContender re-executes the harness binary with the hidden locktry
// subcommand so the attempt comes from an independent process table.
type ExecContender struct {
	// Binary is the harness executable; empty means os.Executable().
	Binary string
}

func (c *ExecContender) TryExclusive(ctx context.Context, path string) (LockStatus, error) {
	bin := c.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("failed to locate own executable: %w", err)
		}
		bin = exe
	}

	cmd := exec.CommandContext(ctx, bin, "locktry", path)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return LockWouldBlock, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case ContenderExitAcquired:
			return LockAcquired, nil
		default:
			return 0, fmt.Errorf("lock contender failed: %s", string(out))
		}
	}
	return 0, fmt.Errorf("failed to run lock contender: %w", err)
}

func runBasicLocking(ctx context.Context, env *Env) (string, error) {
	if env.Contender == nil {
		return "", fmt.Errorf("no lock contender configured")
	}
	path := filepath.Join(env.WorkDir, "lock_test.txt")

	env.step(IDLocking, "Phase 1: Creating test file")
	if err := os.WriteFile(path, []byte("Lock test data"), 0644); err != nil {
		return "", fmt.Errorf("failed to create lock file: %w", err)
	}
	defer os.Remove(path)

	env.step(IDLocking, "Phase 2: Acquiring exclusive lock (LOCK_EX)")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("failed to open lock file: %w", err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return "", fmt.Errorf("failed to acquire exclusive lock: %w", err)
	}

	env.step(IDLocking, "Phase 3: Independent process attempts non-blocking lock")
	status, err := env.Contender.TryExclusive(ctx, path)
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return "", fmt.Errorf("contender attempt failed: %w", err)
	}
	if status != LockWouldBlock {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return "", fmt.Errorf("independent process acquired the lock while it was held")
	}

	env.step(IDLocking, "Phase 4: Releasing exclusive lock")
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return "", fmt.Errorf("failed to release lock: %w", err)
	}

	return "exclusive lock blocked an independent process as expected", nil
}
