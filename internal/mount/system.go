// Package mount owns the lifecycle of one mounted NFS export: the system
// mount/unmount path, live mount-table verification, and the session state
// machine that the orchestrator drives.
package mount

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// System defines the OS capabilities the session needs. The production
// implementation shells out to mount(8)/umount(8); tests substitute a fake.
type System interface {
	// Mount mounts source (server:/export) at target with the given
	// comma-joined NFS option string. A successful return means the mount
	// command exited zero; callers must still verify registration via
	// Entries.
	Mount(ctx context.Context, source, target, options string) error

	// Unmount detaches target. With force set, the unmount is forced and
	// lazy so a busy or unresponsive mount still detaches.
	Unmount(ctx context.Context, target string, force bool) error

	// Entries returns the parsed live mount table.
	Entries() ([]Entry, error)

	// LookPath reports where a required mount utility lives, or an error
	// if it is not installed.
	LookPath(utility string) (string, error)
}

// Entry is one line of the live mount table.
type Entry struct {
	// Source is the mounted device or remote export (server:/path).
	Source string

	// Target is the local mount point.
	Target string

	// FSType is the filesystem type (nfs, nfs4, ...).
	FSType string

	// Options holds the active mount options, split on comma.
	Options []string
}

// HasOption reports whether the entry carries the exact option token.
func (e *Entry) HasOption(opt string) bool {
	for _, o := range e.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// FindTarget returns the entry whose mount point matches target.
func FindTarget(entries []Entry, target string) (Entry, bool) {
	for _, e := range entries {
		if e.Target == target {
			return e, true
		}
	}
	return Entry{}, false
}

// ParseMountTable parses /proc/mounts-style content. Each line is
// whitespace-separated: source, target, fstype, options, then any number
// of additional fields, which are ignored. Short or blank lines are
// skipped rather than treated as errors.
func ParseMountTable(content string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		entries = append(entries, Entry{
			Source:  fields[0],
			Target:  fields[1],
			FSType:  fields[2],
			Options: strings.Split(fields[3], ","),
		})
	}
	return entries
}

const procMounts = "/proc/self/mounts"

// execSystem is the production System backed by the system mount utilities
// and /proc/self/mounts.
type execSystem struct{}

// DefaultSystem returns the production System implementation.
func DefaultSystem() System {
	return &execSystem{}
}

func (*execSystem) Mount(ctx context.Context, source, target, options string) error {
	cmd := exec.CommandContext(ctx, "mount", "-t", "nfs", "-o", options, source, target)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "mount %s timed out", source)
		}
		return errors.Wrapf(err, "mount %s failed: %s", source, strings.TrimSpace(string(out)))
	}
	return nil
}

func (*execSystem) Unmount(ctx context.Context, target string, force bool) error {
	args := []string{}
	if force {
		args = append(args, "-f", "-l")
	}
	args = append(args, target)

	cmd := exec.CommandContext(ctx, "umount", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		// An already-absent mount is not a failure for teardown purposes.
		if strings.Contains(msg, "not mounted") || strings.Contains(msg, "not found") {
			return nil
		}
		return errors.Wrapf(err, "umount %s failed: %s", target, msg)
	}
	return nil
}

func (*execSystem) Entries() ([]Entry, error) {
	data, err := os.ReadFile(procMounts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mount table")
	}
	return ParseMountTable(string(data)), nil
}

func (*execSystem) LookPath(utility string) (string, error) {
	path, err := exec.LookPath(utility)
	if err != nil {
		return "", errors.Wrapf(err, "required utility %q not found", utility)
	}
	return path, nil
}

// Default timeouts for the blocking mount/unmount system calls.
const (
	DefaultMountTimeout   = 30 * time.Second
	DefaultUnmountTimeout = 10 * time.Second
)
