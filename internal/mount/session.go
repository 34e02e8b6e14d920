package mount

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/beastmode/nfscheck/internal/config"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateUnmounted is the initial state before Mount is called.
	StateUnmounted State = iota
	// StateMounting means a mount attempt is in flight.
	StateMounting
	// StateMounted means the export is mounted and verified in the table.
	StateMounted
	// StateTornDown means Teardown ran; the session is finished.
	StateTornDown
	// StateFailed is absorbing: reached from a failed mount attempt or a
	// failed working-directory provisioning step. No transitions out.
	StateFailed
)

// String returns the state name for logs and error messages.
func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateTornDown:
		return "torn-down"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session binds one configured export to a local mount point for the
// duration of a single test battery. It is owned exclusively by the
// orchestrator and never reused across exports.
//
// Lifecycle: Unmounted -> Mounting -> Mounted -> TornDown, with Failed
// absorbing from Mounting and from working-directory provisioning.
// Mount and unmount are never retried.
type Session struct {
	log  *slog.Logger
	sys  System
	exp  *config.Export
	opts *config.MountOptions

	state      State
	mountPoint string
	workDir    string

	mountTimeout   time.Duration
	unmountTimeout time.Duration

	teardownOnce sync.Once
}

// NewSession creates a session for one export. The logger may be nil, in
// which case output is discarded.
func NewSession(log *slog.Logger, sys System, exp *config.Export, opts *config.MountOptions) *Session {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		log:            log,
		sys:            sys,
		exp:            exp,
		opts:           opts,
		state:          StateUnmounted,
		mountTimeout:   DefaultMountTimeout,
		unmountTimeout: DefaultUnmountTimeout,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// MountPoint returns the local mount point, empty until Mount runs.
func (s *Session) MountPoint() string { return s.mountPoint }

// WorkDir returns the working directory for destructive test operations.
// Empty until ProvisionWorkDir succeeds. For read-only exports it equals
// the mount point.
func (s *Session) WorkDir() string { return s.workDir }

// Export returns the export this session is bound to.
func (s *Session) Export() *config.Export { return s.exp }

// Options returns the effective mount options for this session.
func (s *Session) Options() *config.MountOptions { return s.opts }

// OptionString returns the option list handed to the mount utility.
func (s *Session) OptionString() string {
	return s.opts.OptionString(s.exp.Transport, s.exp.Mode)
}

// Mount creates a unique mount point, requests the OS-level mount, and
// independently confirms the mount registered in the live mount table
// before transitioning to Mounted. A zero exit from the mount utility is
// necessary but not sufficient.
//
// Any failure is terminal for this session: the state becomes Failed and
// the mount is never retried.
func (s *Session) Mount(ctx context.Context) error {
	if s.state != StateUnmounted {
		return errors.Errorf("cannot mount from state %s", s.state)
	}

	mountPoint, err := os.MkdirTemp("", "nfscheck-")
	if err != nil {
		s.state = StateFailed
		return errors.Wrap(err, "failed to create mount point")
	}
	s.mountPoint = mountPoint
	s.state = StateMounting

	options := s.OptionString()
	s.log.Info("mounting export",
		"source", s.exp.Source(),
		"mount_point", mountPoint,
		"options", options,
	)

	mctx, cancel := context.WithTimeout(ctx, s.mountTimeout)
	defer cancel()

	if err := s.sys.Mount(mctx, s.exp.Source(), mountPoint, options); err != nil {
		s.state = StateFailed
		s.removeMountPointDir()
		return errors.Wrap(err, "mount attempt failed")
	}

	// Independent verification: the mount must appear in the live table.
	entries, err := s.sys.Entries()
	if err != nil {
		s.state = StateFailed
		s.forceUnmount(ctx)
		return errors.Wrap(err, "mount-table verification failed")
	}
	if _, found := FindTarget(entries, mountPoint); !found {
		s.state = StateFailed
		s.forceUnmount(ctx)
		return errors.Errorf("mount %s not found in mount table", mountPoint)
	}

	s.state = StateMounted
	s.log.Info("mounted", "mount_point", mountPoint, "mode", s.exp.Mode)
	return nil
}

// ProvisionWorkDir prepares the working directory for the test battery.
//
// For read-write exports a uniquely named subdirectory is created under
// the mount point; the name combines a time-based identifier with the
// process ID so parallel runs against the same export cannot collide. On
// failure the session unmounts before propagating the error.
//
// For read-only exports the mount point itself is the working directory;
// nothing is created.
func (s *Session) ProvisionWorkDir(ctx context.Context) (string, error) {
	if s.state != StateMounted {
		return "", errors.Errorf("cannot provision working directory from state %s", s.state)
	}

	if !s.exp.ReadWrite() {
		s.workDir = s.mountPoint
		s.log.Info("read-only export, using mount point directly", "work_dir", s.workDir)
		return s.workDir, nil
	}

	name := fmt.Sprintf("probe-%d-%d", time.Now().Unix(), os.Getpid())
	dir := filepath.Join(s.mountPoint, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		s.state = StateFailed
		s.forceUnmount(ctx)
		s.removeMountPointDir()
		return "", errors.Wrap(err, "failed to create working directory")
	}

	s.workDir = dir
	s.log.Info("working directory ready", "work_dir", dir)
	return dir, nil
}

// Teardown releases the session's resources. It runs exactly once no
// matter how many times it is called, and it is safe to call from a defer
// around the whole battery so cleanup happens even after a probe panic.
//
// For read-write exports the working directory is removed best-effort
// (a removal failure is logged, not fatal). The unmount is forced so a
// busy mount still detaches, and an already-absent mount is tolerated.
func (s *Session) Teardown(ctx context.Context) {
	s.teardownOnce.Do(func() {
		// An operator abort cancels the run context before teardown
		// fires. Release must still happen, so the unmount timeout
		// derives from an uncancelled context.
		ctx = context.WithoutCancel(ctx)

		if s.exp.ReadWrite() && s.workDir != "" {
			if err := os.RemoveAll(s.workDir); err != nil {
				s.log.Warn("failed to remove working directory", "dir", s.workDir, "error", err)
			} else {
				s.log.Info("working directory removed", "dir", s.workDir)
			}
		}

		if s.mountPoint != "" && (s.state == StateMounted || s.state == StateMounting) {
			s.forceUnmount(ctx)
		}
		s.removeMountPointDir()

		// Failed is absorbing; everything else ends at TornDown.
		if s.state != StateFailed {
			s.state = StateTornDown
		}
		s.log.Info("session torn down", "mount_point", s.mountPoint, "state", s.state.String())
	})
}

// forceUnmount detaches the mount point, tolerating failures: at this
// point the session is already failing or finishing, and a leaked mount
// is logged rather than masking the original error.
func (s *Session) forceUnmount(ctx context.Context) {
	uctx, cancel := context.WithTimeout(ctx, s.unmountTimeout)
	defer cancel()

	if err := s.sys.Unmount(uctx, s.mountPoint, true); err != nil {
		s.log.Warn("forced unmount failed", "mount_point", s.mountPoint, "error", err)
	}
}

func (s *Session) removeMountPointDir() {
	if s.mountPoint == "" {
		return
	}
	if err := os.Remove(s.mountPoint); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove mount point directory", "dir", s.mountPoint, "error", err)
	}
}
