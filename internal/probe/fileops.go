package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func runReadWriteEnforcement(ctx context.Context, env *Env) (string, error) {
	path := filepath.Join(env.WorkDir, "rw_test.txt")
	payload := []byte("RW mount test")

	env.step(IDReadWriteEnforcement, "Phase 1: Testing write permissions")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("write on rw mount failed: %w", err)
	}

	env.step(IDReadWriteEnforcement, "Phase 2: Verifying data integrity")
	got, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("readback failed: %w", err)
	}
	if string(got) != string(payload) {
		return "", fmt.Errorf("readback mismatch: wrote %q, read %q", payload, got)
	}

	env.step(IDReadWriteEnforcement, "Phase 3: Cleanup")
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("cleanup delete failed: %w", err)
	}

	return "create, write, readback, and delete all succeeded", nil
}

func runBasicFileOperations(ctx context.Context, env *Env) (string, error) {
	path := filepath.Join(env.WorkDir, "basic_test.txt")
	payload := []byte("Hello NFS3")

	env.step(IDBasicFileOps, "Creating test file and writing data")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}

	env.step(IDBasicFileOps, "Reading file content back")
	got, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	if string(got) != string(payload) {
		return "", fmt.Errorf("content mismatch: wrote %q, read %q", payload, got)
	}
	env.step(IDBasicFileOps, "Data integrity verified")

	env.step(IDBasicFileOps, "Deleting test file")
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("delete failed: %w", err)
	}

	return fmt.Sprintf("%d-byte round trip verified", len(payload)), nil
}

func runIdempotentOperations(ctx context.Context, env *Env) (string, error) {
	path := filepath.Join(env.WorkDir, "idempotent.txt")
	n := env.Params.IdempotentIterations

	env.step(IDIdempotent, "Phase 1: Testing idempotent CREATE/WRITE operations")
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf("Iteration %d", i)
		if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
			return "", fmt.Errorf("iteration %d write failed: %w", i, err)
		}
	}

	env.step(IDIdempotent, "Phase 2: Verifying final content")
	got, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("readback failed: %w", err)
	}
	want := fmt.Sprintf("Iteration %d", n-1)
	if string(got) != want {
		return "", fmt.Errorf("last write did not win: expected %q, got %q", want, got)
	}

	env.step(IDIdempotent, "Phase 3: Testing idempotent DELETE operation")
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("first delete failed: %w", err)
	}
	err = os.Remove(path)
	switch Class(err) {
	case ClassNotFound:
		// Expected: a repeated delete must surface as missing, never as
		// silent success or a different error.
	case ClassNone:
		return "", fmt.Errorf("second delete unexpectedly succeeded")
	default:
		return "", fmt.Errorf("second delete returned wrong error class %s: %w", Class(err), err)
	}

	return fmt.Sprintf("%d repeated writes converged on last payload; duplicate delete rejected", n), nil
}

func runCloseToOpenConsistency(ctx context.Context, env *Env) (string, error) {
	path := filepath.Join(env.WorkDir, "c2o_test.txt")
	payload := []byte("Process 1 data")

	env.step(IDCloseToOpen, "Phase 1: Write and close file")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return "", fmt.Errorf("write failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close failed: %w", err)
	}

	env.step(IDCloseToOpen, fmt.Sprintf("Phase 2: Allowing %s for server flush", env.Params.SettleInterval))
	select {
	case <-time.After(env.Params.SettleInterval):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	env.step(IDCloseToOpen, "Phase 3: Open second handle and read file")
	got, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("second-handle read failed: %w", err)
	}
	if string(got) != string(payload) {
		return "", fmt.Errorf("second handle saw %q, expected %q", got, payload)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("cleanup delete failed: %w", err)
	}

	return fmt.Sprintf("closed write visible to a fresh handle after %s", env.Params.SettleInterval), nil
}

func runReadOnlyEnforcement(ctx context.Context, env *Env) (string, error) {
	// Write at the mount root itself, not a subdirectory: a ro mount has
	// no writable workdir to begin with.
	path := filepath.Join(env.MountPoint, "ro_test.txt")

	env.step(IDReadOnlyEnforcement, "Phase 1: Attempting write on RO mount")
	err := os.WriteFile(path, []byte("Should fail"), 0644)
	switch Class(err) {
	case ClassPermission:
		return fmt.Sprintf("write blocked as expected (%s class)", Class(err)), nil
	case ClassNone:
		os.Remove(path)
		return "", fmt.Errorf("write unexpectedly succeeded on read-only mount")
	default:
		// A failure is only a pass when it is the right kind of failure.
		return "", fmt.Errorf("write rejected with wrong error class %s: %w", Class(err), err)
	}
}

func runReadOnlyReadOperations(ctx context.Context, env *Env) (string, error) {
	env.step(IDReadOnlyReadOps, "Phase 1: Listing directory contents")
	entries, err := os.ReadDir(env.MountPoint)
	if err != nil {
		return "", fmt.Errorf("directory listing failed: %w", err)
	}

	env.step(IDReadOnlyReadOps, "Phase 2: Getting directory stats")
	info, err := os.Stat(env.MountPoint)
	if err != nil {
		return "", fmt.Errorf("stat failed: %w", err)
	}
	env.logger().Info("mount root stat", "mode", info.Mode().String(), "entries", len(entries))

	return fmt.Sprintf("read operations successful (%d items)", len(entries)), nil
}
