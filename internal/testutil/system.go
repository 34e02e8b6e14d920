package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/beastmode/nfscheck/internal/mount"
)

// FakeSystem is an in-memory mount.System. It maintains a synthetic mount
// table and records every call so tests can assert on the exact
// mount/unmount sequence a session produced.
//
// By default a successful Mount registers the target in the table with the
// requested options, mirroring a healthy OS. Tests flip the knobs below to
// simulate the failure modes the session must survive.
type FakeSystem struct {
	mu sync.Mutex

	// MountErr, when set, is returned from Mount (command failure).
	MountErr error

	// MountErrBySource fails mounts of specific sources only, so a test
	// can break one export while the others still mount.
	MountErrBySource map[string]error

	// UnmountErr, when set, is returned from Unmount.
	UnmountErr error

	// EntriesErr, when set, is returned from Entries.
	EntriesErr error

	// LookPathErr, when set, is returned from LookPath.
	LookPathErr error

	// SkipRegistration makes Mount exit successfully without adding the
	// target to the table - the "zero exit but not actually mounted" case
	// the session must catch during verification.
	SkipRegistration bool

	// ExtraOptions are appended to the registered entry's options,
	// simulating options the kernel adds on its own.
	ExtraOptions []string

	entries      []mount.Entry
	mountCalls   []MountCall
	unmountCalls []UnmountCall
}

// MountCall records one Mount invocation.
type MountCall struct {
	Source  string
	Target  string
	Options string
}

// UnmountCall records one Unmount invocation.
type UnmountCall struct {
	Target string
	Force  bool

	// CtxErr is ctx.Err() at the moment of the call, so tests can tell
	// whether the unmount ran under a live or an already-cancelled
	// context.
	CtxErr error
}

// NewFakeSystem creates an empty fake with default healthy behavior.
func NewFakeSystem() *FakeSystem {
	return &FakeSystem{}
}

// Mount implements mount.System.
func (f *FakeSystem) Mount(_ context.Context, source, target, options string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mountCalls = append(f.mountCalls, MountCall{Source: source, Target: target, Options: options})
	if f.MountErr != nil {
		return f.MountErr
	}
	if err, ok := f.MountErrBySource[source]; ok {
		return err
	}
	if f.SkipRegistration {
		return nil
	}

	opts := strings.Split(options, ",")
	opts = append(opts, f.ExtraOptions...)
	f.entries = append(f.entries, mount.Entry{
		Source:  source,
		Target:  target,
		FSType:  "nfs",
		Options: opts,
	})
	return nil
}

// Unmount implements mount.System. A missing target is tolerated, matching
// the production behavior for already-absent mounts.
func (f *FakeSystem) Unmount(ctx context.Context, target string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unmountCalls = append(f.unmountCalls, UnmountCall{Target: target, Force: force, CtxErr: ctx.Err()})
	if f.UnmountErr != nil {
		return f.UnmountErr
	}

	for i, e := range f.entries {
		if e.Target == target {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Entries implements mount.System.
func (f *FakeSystem) Entries() ([]mount.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EntriesErr != nil {
		return nil, f.EntriesErr
	}
	out := make([]mount.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

// LookPath implements mount.System.
func (f *FakeSystem) LookPath(utility string) (string, error) {
	if f.LookPathErr != nil {
		return "", f.LookPathErr
	}
	return "/sbin/" + utility, nil
}

// AddEntry seeds the synthetic mount table directly.
func (f *FakeSystem) AddEntry(e mount.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

// MountCalls returns a copy of the recorded Mount invocations.
func (f *FakeSystem) MountCalls() []MountCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MountCall, len(f.mountCalls))
	copy(out, f.mountCalls)
	return out
}

// UnmountCalls returns a copy of the recorded Unmount invocations.
func (f *FakeSystem) UnmountCalls() []UnmountCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UnmountCall, len(f.unmountCalls))
	copy(out, f.unmountCalls)
	return out
}

// Mounted reports whether target is currently in the synthetic table.
func (f *FakeSystem) Mounted(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Target == target {
			return true
		}
	}
	return false
}

var _ mount.System = (*FakeSystem)(nil)
