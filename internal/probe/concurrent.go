package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// writerPayloadRepeat sizes each worker's file: the worker's tag line
// repeated this many times.
const writerPayloadRepeat = 1000

// writeAndVerify is one worker's unit of work: write a distinct file,
// force it to stable storage, then read it back and compare lengths.
func writeAndVerify(dir string, id int) error {
	path := filepath.Join(dir, fmt.Sprintf("writer_%d.txt", id))
	payload := strings.Repeat(fmt.Sprintf("Writer %d\n", id), writerPayloadRepeat)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}
	if _, err := f.WriteString(payload); err != nil {
		f.Close()
		return fmt.Errorf("write failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("readback failed: %w", err)
	}
	if len(got) != len(payload) {
		return fmt.Errorf("length mismatch: wrote %d bytes, read %d", len(payload), len(got))
	}
	return nil
}

func runConcurrentWriters(ctx context.Context, env *Env) (string, error) {
	w := env.Params.ConcurrentWriters
	env.step(IDConcurrentWriters, fmt.Sprintf("Phase 1: Launching %d concurrent writers", w))

	// One slot per worker. Workers are never aborted early: every
	// worker's individual outcome must be observable in the aggregate,
	// so there is no error channel that short-circuits the pool.
	errs := make([]error, w)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < w; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs[id] = writeAndVerify(env.WorkDir, id)
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	env.step(IDConcurrentWriters, fmt.Sprintf("Phase 2: All writers completed in %.2fs", duration.Seconds()))

	succeeded := 0
	for id, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		env.logger().Error("writer failed", "writer", id, "error", err)
	}

	// Cleanup is best effort; a leftover file must not fail the probe.
	for i := 0; i < w; i++ {
		os.Remove(filepath.Join(env.WorkDir, fmt.Sprintf("writer_%d.txt", i)))
	}

	detail := fmt.Sprintf("%d/%d writers succeeded in %.2fs", succeeded, w, duration.Seconds())
	if succeeded != w {
		return "", fmt.Errorf("%s", detail)
	}
	return detail, nil
}
