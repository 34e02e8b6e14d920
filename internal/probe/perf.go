package probe

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// progressEvery is how often the long-running probes emit a progress line.
const progressEvery = 25

func runSmallFilePerformance(ctx context.Context, env *Env) (string, error) {
	n := env.Params.SmallFileCount
	subdir := filepath.Join(env.WorkDir, "small_files")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		return "", fmt.Errorf("failed to create probe subdirectory: %w", err)
	}

	name := func(i int) string {
		return filepath.Join(subdir, fmt.Sprintf("small_%04d.txt", i))
	}

	env.step(IDSmallFiles, fmt.Sprintf("Phase 1: Creating %d small files", n))
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := os.WriteFile(name(i), []byte(fmt.Sprintf("%d", i)), 0644); err != nil {
			return "", fmt.Errorf("create %d failed: %w", i, err)
		}
		if (i+1)%progressEvery == 0 {
			rate := float64(i+1) / time.Since(start).Seconds()
			env.logger().Info("create progress", "done", i+1, "total", n,
				"rate", fmt.Sprintf("%.0f files/s", rate))
		}
	}
	createRate := float64(n) / time.Since(start).Seconds()

	env.step(IDSmallFiles, fmt.Sprintf("Phase 2: Reading %d files", n))
	start = time.Now()
	for i := 0; i < n; i++ {
		if _, err := os.ReadFile(name(i)); err != nil {
			return "", fmt.Errorf("read %d failed: %w", i, err)
		}
	}
	readRate := float64(n) / time.Since(start).Seconds()

	env.step(IDSmallFiles, fmt.Sprintf("Phase 3: Deleting %d files", n))
	start = time.Now()
	for i := 0; i < n; i++ {
		if err := os.Remove(name(i)); err != nil {
			return "", fmt.Errorf("delete %d failed: %w", i, err)
		}
	}
	deleteRate := float64(n) / time.Since(start).Seconds()

	if err := os.Remove(subdir); err != nil {
		return "", fmt.Errorf("failed to remove probe subdirectory: %w", err)
	}

	return fmt.Sprintf("%d files - Create: %.0f ops/s, Read: %.0f ops/s, Delete: %.0f ops/s",
		n, createRate, readRate, deleteRate), nil
}

func runLargeSequentialIO(ctx context.Context, env *Env) (string, error) {
	sizeMB := env.Params.LargeFileMB
	chunkSize := env.Params.ChunkSize
	total := uint64(sizeMB) * uint64(chunkSize)
	path := filepath.Join(env.WorkDir, "large_seq.bin")

	chunk := make([]byte, chunkSize)
	if _, err := rand.Read(chunk); err != nil {
		return "", fmt.Errorf("failed to generate payload: %w", err)
	}

	env.step(IDLargeSequentialIO, fmt.Sprintf("Phase 1: Sequential WRITE (%s)", humanize.IBytes(total)))
	start := time.Now()
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}
	for i := 0; i < sizeMB; i++ {
		if err := ctx.Err(); err != nil {
			f.Close()
			return "", err
		}
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			return "", fmt.Errorf("write chunk %d failed: %w", i, err)
		}
		if (i+1)%progressEvery == 0 {
			rate := float64(i+1) / time.Since(start).Seconds()
			env.logger().Info("write progress", "done_mb", i+1, "total_mb", sizeMB,
				"rate", fmt.Sprintf("%.1f MB/s", rate))
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("sync failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close failed: %w", err)
	}
	writeMBps := float64(sizeMB) / time.Since(start).Seconds()

	env.step(IDLargeSequentialIO, fmt.Sprintf("Phase 2: Sequential READ (%s)", humanize.IBytes(total)))
	start = time.Now()
	f, err = os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for read failed: %w", err)
	}
	var bytesRead uint64
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		bytesRead += uint64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return "", fmt.Errorf("read failed after %s: %w", humanize.IBytes(bytesRead), err)
		}
	}
	f.Close()
	if bytesRead != total {
		return "", fmt.Errorf("short read: wrote %s, read back %s",
			humanize.IBytes(total), humanize.IBytes(bytesRead))
	}
	readMBps := float64(sizeMB) / time.Since(start).Seconds()

	env.step(IDLargeSequentialIO, "Phase 3: Cleaning up")
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("cleanup delete failed: %w", err)
	}

	return fmt.Sprintf("%dMB - Write: %.2f MB/s, Read: %.2f MB/s", sizeMB, writeMBps, readMBps), nil
}
